package page

import (
	"errors"
	"sync"

	"popup-engine/internal/campaign"
	"popup-engine/internal/trigger"
)

var ErrNoHistory = errors.New("page: history api unavailable")

const (
	CommandPushHistory = "push_history"
	CommandShow        = "show"
)

// Command is an instruction the client script must carry out on the page.
type Command struct {
	Type       string               `json:"type"`
	State      trigger.HistoryState `json:"state,omitempty"`
	CampaignID string               `json:"campaign_id,omitempty"`
	Content    *campaign.Content    `json:"content,omitempty"`
}

type listener[T any] struct {
	id int
	fn func(T)
}

type listeners[T any] struct {
	next int
	list []listener[T]
}

func (l *listeners[T]) add(fn func(T)) int {
	l.next++
	l.list = append(l.list, listener[T]{id: l.next, fn: fn})
	return l.next
}

func (l *listeners[T]) remove(id int) {
	for i, e := range l.list {
		if e.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *listeners[T]) snapshot() []func(T) {
	out := make([]func(T), len(l.list))
	for i, e := range l.list {
		out[i] = e.fn
	}
	return out
}

// Bus is the server-side mirror of one browser page. The client reports
// scroll, pointer and history events; the engine answers with commands the
// client drains. Listeners are invoked without the bus lock held, so they
// may cancel themselves or push commands.
type Bus struct {
	mu       sync.Mutex
	history  bool
	viewport *trigger.Viewport
	scroll   listeners[trigger.Viewport]
	pointer  listeners[trigger.PointerEvent]
	pop      listeners[trigger.HistoryState]
	outbox   []Command
}

// NewBus creates a page mirror. history reports whether the client has a
// usable history API.
func NewBus(history bool) *Bus { return &Bus{history: history} }

func (b *Bus) Current() (trigger.Viewport, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.viewport == nil {
		return trigger.Viewport{}, false
	}
	return *b.viewport, true
}

func (b *Bus) OnScroll(fn func(trigger.Viewport)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.scroll.add(fn)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.scroll.remove(id)
	}
}

func (b *Bus) OnPointerLeave(fn func(trigger.PointerEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.pointer.add(fn)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.pointer.remove(id)
	}
}

func (b *Bus) OnPopState(fn func(trigger.HistoryState)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.pop.add(fn)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.pop.remove(id)
	}
}

func (b *Bus) PushState(state trigger.HistoryState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.history {
		return ErrNoHistory
	}
	b.outbox = append(b.outbox, Command{Type: CommandPushHistory, State: state})
	return nil
}

// Render queues the popup for display on the client.
func (b *Bus) Render(c campaign.Campaign) {
	content := c.Content
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbox = append(b.outbox, Command{Type: CommandShow, CampaignID: c.ID, Content: &content})
}

// Scroll records a viewport measurement and notifies scroll listeners.
func (b *Bus) Scroll(v trigger.Viewport) {
	b.mu.Lock()
	b.viewport = &v
	fns := b.scroll.snapshot()
	b.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (b *Bus) PointerLeave(e trigger.PointerEvent) {
	b.mu.Lock()
	fns := b.pointer.snapshot()
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (b *Bus) PopState(s trigger.HistoryState) {
	b.mu.Lock()
	fns := b.pop.snapshot()
	b.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Drain returns and clears the pending commands.
func (b *Bus) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.outbox
	b.outbox = nil
	return out
}

// Listeners reports the number of live listeners, for tests and teardown checks.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scroll.list) + len(b.pointer.list) + len(b.pop.list)
}
