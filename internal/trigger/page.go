package trigger

import "popup-engine/internal/clock"

// Viewport is one scroll measurement of the host page.
type Viewport struct {
	ScrollOffset   float64 `json:"scroll_offset"`
	DocumentHeight float64 `json:"document_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// Depth returns how far down the page the viewer has scrolled, in percent.
// A page that cannot scroll has depth 0.
func (v Viewport) Depth() float64 {
	scrollable := v.DocumentHeight - v.ViewportHeight
	if scrollable <= 0 {
		return 0
	}
	return v.ScrollOffset / scrollable * 100
}

type ScrollSource interface {
	// Current returns the last known viewport, if any.
	Current() (Viewport, bool)
	OnScroll(fn func(Viewport)) (cancel func())
}

// PointerEvent is a pointer-leave/out notification.
type PointerEvent struct {
	Y float64 `json:"y"`
	// OnRoot is set when the event target is the document root.
	OnRoot bool `json:"on_root"`
}

type PointerSource interface {
	OnPointerLeave(fn func(PointerEvent)) (cancel func())
}

// HistoryState is the state object attached to a history entry.
type HistoryState map[string]string

type History interface {
	PushState(state HistoryState) error
	OnPopState(fn func(HistoryState)) (cancel func())
}

// Page bundles the host capabilities monitors can arm against. Any field may
// be nil when the host lacks that capability.
type Page struct {
	Clock         clock.Clock
	Scroll        ScrollSource
	Pointer       PointerSource
	History       History
	ViewportWidth int
}

// IsCompact is the static device-class check used to pick the exit-intent
// variant.
func IsCompact(viewportWidth, threshold int) bool {
	return viewportWidth > 0 && viewportWidth < threshold
}
