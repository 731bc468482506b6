package trigger

import (
	"time"

	"github.com/rs/zerolog"

	"popup-engine/internal/campaign"
)

const DefaultCompactWidth = 768

type FactoryOptions struct {
	// CompactWidth is the viewport width below which a page counts as a
	// touch device.
	CompactWidth int
	// DisableCompactExit turns exit-intent campaigns into no-ops on
	// compact devices instead of using the back-navigation heuristic.
	DisableCompactExit bool
}

// Factory maps trigger rules to monitors for one page.
type Factory struct {
	page    Page
	compact bool
	opts    FactoryOptions
	log     zerolog.Logger
}

func NewFactory(page Page, opts FactoryOptions, logger zerolog.Logger) *Factory {
	if opts.CompactWidth <= 0 {
		opts.CompactWidth = DefaultCompactWidth
	}
	return &Factory{
		page:    page,
		compact: IsCompact(page.ViewportWidth, opts.CompactWidth),
		opts:    opts,
		log:     logger,
	}
}

func (f *Factory) Compact() bool { return f.compact }

func (f *Factory) For(rule campaign.TriggerRule) Monitor {
	switch rule.Kind {
	case campaign.TriggerImmediate:
		return Immediate{}
	case campaign.TriggerDelay:
		return Delay{Clock: f.page.Clock, After: time.Duration(rule.DelaySeconds * float64(time.Second))}
	case campaign.TriggerScroll:
		return ScrollDepth{Source: f.page.Scroll, Percent: rule.ScrollPercent}
	case campaign.TriggerExitIntent:
		if !f.compact {
			return PointerExit{Source: f.page.Pointer}
		}
		if f.opts.DisableCompactExit {
			return Never
		}
		return BackNavigationExit{History: f.page.History}
	}
	f.log.Warn().Str("trigger", string(rule.Kind)).Msg("unknown trigger rule; monitor will never fire")
	return Never
}
