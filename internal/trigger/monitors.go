package trigger

import (
	"time"

	"github.com/google/uuid"

	"popup-engine/internal/clock"
)

// ExitMarkerKey tags the synthetic history entry pushed by the compact
// exit-intent monitor.
const ExitMarkerKey = "__popup_exit"

// Immediate fires synchronously on arm.
type Immediate struct{}

func (Immediate) Arm(onFire func()) func() {
	o := newOneShot(onFire)
	o.fire()
	return o.disarm
}

// Delay fires once after the given duration.
type Delay struct {
	Clock clock.Clock
	After time.Duration
}

func (m Delay) Arm(onFire func()) func() {
	if m.Clock == nil {
		return Never.Arm(onFire)
	}
	o := newOneShot(onFire)
	t := m.Clock.AfterFunc(m.After, o.fire)
	o.onRelease(func() { t.Stop() })
	return o.disarm
}

// ScrollDepth fires once the viewer has scrolled at least Percent of the
// scrollable height.
type ScrollDepth struct {
	Source  ScrollSource
	Percent float64
}

func (m ScrollDepth) Arm(onFire func()) func() {
	if m.Source == nil {
		return Never.Arm(onFire)
	}
	o := newOneShot(onFire)
	check := func(v Viewport) {
		if v.Depth() >= m.Percent {
			o.fire()
		}
	}
	o.onRelease(m.Source.OnScroll(check))
	if v, ok := m.Source.Current(); ok {
		check(v)
	}
	return o.disarm
}

// PointerExit fires when the pointer leaves the document through the top
// edge of the viewport.
type PointerExit struct {
	Source PointerSource
}

func (m PointerExit) Arm(onFire func()) func() {
	if m.Source == nil {
		return Never.Arm(onFire)
	}
	o := newOneShot(onFire)
	o.onRelease(m.Source.OnPointerLeave(func(e PointerEvent) {
		if e.OnRoot && e.Y <= 0 {
			o.fire()
		}
	}))
	return o.disarm
}

// BackNavigationExit approximates exit intent on touch devices. It pushes a
// marked history entry; a later pop that restores a state without the
// marker means the viewer went back. This is a heuristic: a back gesture
// does not always mean the viewer is leaving.
type BackNavigationExit struct {
	History History
}

func (m BackNavigationExit) Arm(onFire func()) func() {
	if m.History == nil {
		return Never.Arm(onFire)
	}
	marker := uuid.NewString()
	if err := m.History.PushState(HistoryState{ExitMarkerKey: marker}); err != nil {
		return Never.Arm(onFire)
	}
	o := newOneShot(onFire)
	o.onRelease(m.History.OnPopState(func(s HistoryState) {
		if s[ExitMarkerKey] != marker {
			o.fire()
		}
	}))
	return o.disarm
}
