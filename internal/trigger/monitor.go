package trigger

import "sync"

// Monitor arms one detection mechanism for one campaign.
//
// onFire is invoked at most once. Calling the returned disarm before the
// monitor fires guarantees onFire is never invoked; calling it after firing,
// or more than once, does nothing.
type Monitor interface {
	Arm(onFire func()) (disarm func())
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(onFire func()) (disarm func())

func (f MonitorFunc) Arm(onFire func()) func() { return f(onFire) }

// Never is armed when a capability is missing. It never fires.
var Never Monitor = never{}

type never struct{}

func (never) Arm(func()) func() { return func() {} }

// oneShot is the local fire/disarm guard every monitor carries. Release
// hooks (timer stop, listener removal) run exactly once, on whichever of
// fire or disarm commits first. No lock is held while hooks or onFire run.
type oneShot struct {
	mu       sync.Mutex
	done     bool
	onFire   func()
	releases []func()
}

func newOneShot(onFire func()) *oneShot { return &oneShot{onFire: onFire} }

func (o *oneShot) fire() {
	if rel, ok := o.commit(); ok {
		runAll(rel)
		o.onFire()
	}
}

func (o *oneShot) disarm() {
	if rel, ok := o.commit(); ok {
		runAll(rel)
	}
}

func (o *oneShot) commit() ([]func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil, false
	}
	o.done = true
	rel := o.releases
	o.releases = nil
	return rel, true
}

// onRelease registers a cleanup hook. If the guard already committed, the
// hook runs immediately.
func (o *oneShot) onRelease(f func()) {
	o.mu.Lock()
	if !o.done {
		o.releases = append(o.releases, f)
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	f()
}

func runAll(fs []func()) {
	for _, f := range fs {
		f()
	}
}
