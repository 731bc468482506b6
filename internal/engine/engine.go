package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"popup-engine/internal/campaign"
	"popup-engine/internal/observability"
)

var ErrVisitStarted = errors.New("engine: visit already started")

// Coordinator arbitrates the popup for a single page visit.
//
// Lifecycle: Idle -> Filtering -> Armed -> Won -> TornDown. Armed may go
// straight to TornDown when the visit ends first. Every transition happens
// under mu and is taken at most once; the Armed -> Won transition is the
// single commit point that makes the first fire the only winner.
type Coordinator struct {
	mu         sync.Mutex
	state      State
	candidates []campaign.Campaign
	byID       map[string]campaign.Campaign
	winner     *campaign.Campaign
	monitors   map[string]func()

	// ctx carries request values to the winner's frequency write, which
	// may happen long after the request that began the visit returned.
	ctx context.Context

	freq     FrequencyCapper
	display  Display
	triggers MonitorFactory
	log      zerolog.Logger
}

func NewCoordinator(freq FrequencyCapper, display Display, triggers MonitorFactory, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		freq:     freq,
		display:  display,
		triggers: triggers,
		log:      logger,
	}
}

// Begin fetches the campaign list, drops inactive and frequency-capped
// campaigns and arms one monitor per survivor. A source error counts as an
// empty list. Monitors that fire during Begin (immediate triggers) win on
// the spot and stop further arming.
func (c *Coordinator) Begin(ctx context.Context, src Source) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrVisitStarted
	}
	c.state = Filtering
	c.ctx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	var list []campaign.Campaign
	if src != nil {
		var err error
		list, err = src.ActiveCampaigns(ctx)
		if err != nil {
			observability.SourceErrors.Inc()
			c.log.Error().Err(err).Msg("campaign source failed; no popup this visit")
			list = nil
		}
	}
	survivors := c.filter(ctx, list)

	c.mu.Lock()
	if c.state != Filtering {
		c.mu.Unlock()
		c.log.Debug().Msg("visit ended during filtering")
		return nil
	}
	c.state = Armed
	c.candidates = survivors
	c.byID = make(map[string]campaign.Campaign, len(survivors))
	for _, s := range survivors {
		c.byID[s.ID] = s
	}
	c.monitors = make(map[string]func(), len(survivors))
	c.mu.Unlock()

	c.log.Debug().Int("fetched", len(list)).Int("candidates", len(survivors)).Msg("visit armed")
	for _, s := range survivors {
		if !c.arm(s) {
			break
		}
	}
	return nil
}

func (c *Coordinator) filter(ctx context.Context, list []campaign.Campaign) []campaign.Campaign {
	seen := make(map[string]struct{}, len(list))
	out := make([]campaign.Campaign, 0, len(list))
	for _, cand := range list {
		lg := c.log.With().Str("campaign_id", cand.ID).Logger()
		if cand.ID == "" || !cand.IsActive {
			lg.Debug().Msg("skipping inactive campaign")
			continue
		}
		if _, dup := seen[cand.ID]; dup {
			lg.Debug().Msg("skipping duplicate campaign")
			continue
		}
		seen[cand.ID] = struct{}{}
		if !c.freq.IsEligible(ctx, cand.ID, cand.Frequency) {
			lg.Debug().Str("frequency", string(cand.Frequency)).Msg("campaign frequency capped")
			continue
		}
		out = append(out, cand)
	}
	return out
}

// arm registers one monitor. It reports false once the visit is no longer
// Armed, which stops Begin from arming the rest.
func (c *Coordinator) arm(cand campaign.Campaign) bool {
	c.mu.Lock()
	live := c.state == Armed
	c.mu.Unlock()
	if !live {
		return false
	}

	id := cand.ID
	disarm := c.triggers.For(cand.Trigger).Arm(func() { c.fire(id) })

	c.mu.Lock()
	if c.state != Armed {
		c.mu.Unlock()
		disarm()
		return false
	}
	c.monitors[id] = disarm
	c.mu.Unlock()
	c.log.Debug().Str("campaign_id", id).Str("trigger", cand.Trigger.String()).Msg("monitor armed")
	return true
}

func (c *Coordinator) fire(id string) {
	c.mu.Lock()
	if c.state != Armed {
		state := c.state
		c.mu.Unlock()
		observability.IgnoredFires.Inc()
		c.log.Debug().Str("campaign_id", id).Str("state", state.String()).Msg("late fire ignored")
		return
	}
	w := c.byID[id]
	c.state = Won
	c.winner = &w
	mons := c.monitors
	c.monitors = nil
	ctx := c.ctx
	c.mu.Unlock()

	for _, disarm := range mons {
		disarm()
	}
	c.log.Info().Str("campaign_id", id).Str("trigger", w.Trigger.String()).Msg("campaign won")
	c.freq.RecordShown(ctx, w.ID, w.Frequency)

	// End may have landed while the record was written. Holding mu across
	// Show keeps a concurrent End from tearing down mid-render.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Won {
		c.log.Debug().Str("campaign_id", id).Msg("visit ended before render; popup dropped")
		return
	}
	c.display.Show(w)
}

// End tears the visit down: every live monitor is disarmed and no monitor
// can win afterwards. Safe to call in any state and more than once.
func (c *Coordinator) End() {
	c.mu.Lock()
	if c.state == TornDown {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = TornDown
	mons := c.monitors
	c.monitors = nil
	c.mu.Unlock()

	for _, disarm := range mons {
		disarm()
	}
	outcome := "abandoned"
	if prev == Won {
		outcome = "shown"
	}
	observability.Arbitrations.WithLabelValues(outcome).Inc()
	c.log.Debug().Str("from", prev.String()).Int("disarmed", len(mons)).Msg("visit torn down")
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Winner() (campaign.Campaign, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.winner == nil {
		return campaign.Campaign{}, false
	}
	return *c.winner, true
}

// Candidates returns the campaigns that survived filtering.
func (c *Coordinator) Candidates() []campaign.Campaign {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]campaign.Campaign(nil), c.candidates...)
}

// ArmedMonitors reports how many monitors are still live.
func (c *Coordinator) ArmedMonitors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.monitors)
}
