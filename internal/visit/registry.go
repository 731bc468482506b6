package visit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"popup-engine/internal/clock"
	"popup-engine/internal/display"
	"popup-engine/internal/engine"
	"popup-engine/internal/frequency"
	"popup-engine/internal/kv"
	"popup-engine/internal/observability"
	"popup-engine/internal/page"
	"popup-engine/internal/trigger"
)

var ErrNotFound = errors.New("visit: not found")

// Deps are the collaborators shared by every visit.
type Deps struct {
	Source   engine.Source
	Sessions *kv.Sessions
	// Durable returns the long-lived frequency bucket for a viewer. Nil
	// means no durable medium; calendar-day caps then fail open.
	Durable  func(viewerID string) kv.Bucket
	Sink     display.ActionSink
	Clock    clock.Clock
	Triggers trigger.FactoryOptions
	Log      zerolog.Logger
}

// StartRequest describes the page a visit begins on.
type StartRequest struct {
	SessionID     string
	ViewerID      string
	Timezone      string
	ViewportWidth int
	History       bool
	Viewport      *trigger.Viewport
}

// Visit is one page view with its own arbitration state.
type Visit struct {
	ID        string
	SessionID string
	Compact   bool
	Bus       *page.Bus
	Coord     *engine.Coordinator
	Slot      *display.Slot

	mu       sync.Mutex
	lastSeen time.Time
}

func (v *Visit) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visit) idleSince(t time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen.Before(t)
}

// Registry owns the live visits of the service.
type Registry struct {
	deps   Deps
	mu     sync.Mutex
	visits map[string]*Visit
}

func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Sessions == nil {
		deps.Sessions = kv.NewSessions(deps.Clock.Now)
	}
	return &Registry{deps: deps, visits: map[string]*Visit{}}
}

// Start creates a visit and runs its arbitration up to Armed (or Won, when
// an immediate campaign is eligible).
func (r *Registry) Start(ctx context.Context, req StartRequest) (*Visit, error) {
	id := uuid.NewString()
	lg := r.deps.Log.With().Str("visit_id", id).Str("session_id", req.SessionID).Logger()

	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			lg.Debug().Err(err).Str("timezone", req.Timezone).Msg("unknown timezone; using UTC")
		} else {
			loc = l
		}
	}

	var session, durable kv.Bucket
	if req.SessionID != "" {
		session = r.deps.Sessions.Bucket(req.SessionID)
	}
	if req.ViewerID != "" && r.deps.Durable != nil {
		durable = r.deps.Durable(req.ViewerID)
	}
	store := frequency.NewStore(session, durable, r.deps.Clock, loc, lg)

	bus := page.NewBus(req.History)
	if req.Viewport != nil {
		bus.Scroll(*req.Viewport)
	}
	pg := trigger.Page{
		Clock:         r.deps.Clock,
		Scroll:        bus,
		Pointer:       bus,
		History:       bus,
		ViewportWidth: req.ViewportWidth,
	}
	factory := trigger.NewFactory(pg, r.deps.Triggers, lg)

	v := &Visit{ID: id, SessionID: req.SessionID, Compact: factory.Compact(), Bus: bus, lastSeen: r.deps.Clock.Now()}
	// a closed popup ends the visit; nothing can show again on this page
	v.Slot = display.NewSlot(bus, r.deps.Sink, func() { _ = r.End(id) }, lg)
	v.Coord = engine.NewCoordinator(store, v.Slot, factory, lg)

	r.mu.Lock()
	r.visits[id] = v
	r.mu.Unlock()
	observability.ActiveVisits.Inc()

	if err := v.Coord.Begin(ctx, r.deps.Source); err != nil {
		_ = r.End(id)
		return nil, err
	}
	lg.Debug().Bool("compact", v.Compact).Str("state", v.Coord.State().String()).Msg("visit started")
	return v, nil
}

// Get returns a live visit and marks it, and its session, as active.
func (r *Registry) Get(id string) (*Visit, error) {
	r.mu.Lock()
	v, ok := r.visits[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	v.touch(r.deps.Clock.Now())
	if v.SessionID != "" {
		r.deps.Sessions.Touch(v.SessionID)
	}
	return v, nil
}

// End tears the visit down and forgets it.
func (r *Registry) End(id string) error {
	r.mu.Lock()
	v, ok := r.visits[id]
	delete(r.visits, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	v.Coord.End()
	observability.ActiveVisits.Dec()
	return nil
}

// EndSession is the session boundary: every session-scoped frequency record
// of the session is dropped. Reports whether the session was known.
func (r *Registry) EndSession(sessionID string) bool {
	return r.deps.Sessions.End(sessionID)
}

// Expire ends visits idle for longer than ttl and returns how many.
func (r *Registry) Expire(ttl time.Duration) int {
	cutoff := r.deps.Clock.Now().Add(-ttl)
	r.mu.Lock()
	var stale []string
	for id, v := range r.visits {
		if v.idleSince(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range stale {
		if r.End(id) == nil {
			n++
		}
	}
	return n
}

// ExpireSessions drops sessions idle for longer than ttl.
func (r *Registry) ExpireSessions(ttl time.Duration) []string {
	return r.deps.Sessions.Expire(ttl)
}

// EndAll tears down every visit, used on shutdown.
func (r *Registry) EndAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.visits))
	for id := range r.visits {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.End(id)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visits)
}
