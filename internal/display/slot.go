package display

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"popup-engine/internal/campaign"
)

// IntentKind: "dismissed" | "action_invoked" | "subscribed"
type IntentKind string

const (
	Dismissed     IntentKind = "dismissed"
	ActionInvoked IntentKind = "action_invoked"
	Subscribed    IntentKind = "subscribed"
)

// Intent is a viewer interaction with the shown popup. TargetURL is set for
// ActionInvoked (may be empty), Email for Subscribed. Neither is validated.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	TargetURL string     `json:"target_url,omitempty"`
	Email     string     `json:"email,omitempty"`
}

// Renderer presents the winning campaign's content.
type Renderer interface {
	Render(c campaign.Campaign)
}

// ActionSink carries out viewer actions outside the engine.
type ActionSink interface {
	OpenURL(ctx context.Context, campaignID, targetURL string) error
	Subscribe(ctx context.Context, campaignID, email string) error
}

// Slot holds at most one campaign for presentation. Closing the slot never
// re-arms anything; arbitration is one-shot per visit.
type Slot struct {
	mu       sync.Mutex
	active   *campaign.Campaign
	closed   bool
	renderer Renderer
	sink     ActionSink
	onClose  func()
	log      zerolog.Logger
}

// NewSlot wires a slot. onClose runs once, after the viewer dismisses or
// acts on the popup.
func NewSlot(r Renderer, sink ActionSink, onClose func(), logger zerolog.Logger) *Slot {
	return &Slot{renderer: r, sink: sink, onClose: onClose, log: logger}
}

// Show presents c. Only the first call per slot is honored.
func (s *Slot) Show(c campaign.Campaign) bool {
	s.mu.Lock()
	if s.active != nil || s.closed {
		s.mu.Unlock()
		s.log.Warn().Str("campaign_id", c.ID).Msg("display slot already used; ignoring show")
		return false
	}
	s.active = &c
	s.mu.Unlock()

	s.log.Info().Str("campaign_id", c.ID).Msg("popup shown")
	if s.renderer != nil {
		s.renderer.Render(c)
	}
	return true
}

// Active returns the campaign currently held, if any.
func (s *Slot) Active() (campaign.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.closed {
		return campaign.Campaign{}, false
	}
	return *s.active, true
}

func (s *Slot) Dismiss() {
	if _, ok := s.close(); ok {
		s.log.Info().Msg("popup dismissed")
	}
}

// Handle forwards a viewer intent to the action sink and closes the slot.
// Sink errors are logged; they never reach the viewer.
func (s *Slot) Handle(ctx context.Context, in Intent) {
	c, ok := s.close()
	if !ok {
		s.log.Debug().Str("intent", string(in.Kind)).Msg("intent without active popup ignored")
		return
	}
	lg := s.log.With().Str("campaign_id", c.ID).Str("intent", string(in.Kind)).Logger()

	var err error
	switch in.Kind {
	case ActionInvoked:
		target := in.TargetURL
		if target == "" {
			target = c.Content.CTAURL
		}
		if s.sink != nil && target != "" {
			err = s.sink.OpenURL(ctx, c.ID, target)
		}
	case Subscribed:
		if s.sink != nil {
			err = s.sink.Subscribe(ctx, c.ID, in.Email)
		}
	}
	if err != nil {
		lg.Error().Err(err).Msg("popup action failed")
		return
	}
	lg.Info().Msg("popup closed")
}

func (s *Slot) close() (campaign.Campaign, bool) {
	s.mu.Lock()
	if s.active == nil || s.closed {
		s.mu.Unlock()
		return campaign.Campaign{}, false
	}
	s.closed = true
	c := *s.active
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
	return c, true
}
