package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"popup-engine/internal/cache"
	"popup-engine/internal/campaign"
	"popup-engine/internal/storage"
)

var ErrNotLoaded = errors.New("catalog: campaigns not loaded yet")

// Loader is the slice of a storage backend the catalog reads from.
type Loader interface {
	LoadActiveCampaigns(ctx context.Context) ([]storage.CampaignRow, error)
}

type snapshot struct {
	campaigns []campaign.Campaign
	loadedAt  time.Time
}

// Catalog serves the active campaign list from an in-memory snapshot that
// is rebuilt on refresh. Visits read it lock-free.
type Catalog struct {
	snap cache.Snapshot[snapshot]
	log  zerolog.Logger
}

func New(logger zerolog.Logger) *Catalog { return &Catalog{log: logger} }

// Refresh reloads the snapshot. On error the previous snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context, l Loader) error {
	rows, err := l.LoadActiveCampaigns(ctx)
	if err != nil {
		return err
	}
	cs := make([]campaign.Campaign, 0, len(rows))
	for _, r := range rows {
		cs = append(cs, FromRow(r))
	}
	c.snap.Store(snapshot{campaigns: cs, loadedAt: time.Now()})
	c.log.Info().Int("campaigns", len(cs)).Msg("campaign catalog refreshed")
	return nil
}

// Set replaces the snapshot directly.
func (c *Catalog) Set(cs []campaign.Campaign) {
	c.snap.Store(snapshot{campaigns: append([]campaign.Campaign(nil), cs...), loadedAt: time.Now()})
}

// ActiveCampaigns returns a copy of the current list.
func (c *Catalog) ActiveCampaigns(context.Context) ([]campaign.Campaign, error) {
	s, ok := c.snap.Load()
	if !ok {
		return nil, ErrNotLoaded
	}
	return append([]campaign.Campaign(nil), s.campaigns...), nil
}

func FromRow(r storage.CampaignRow) campaign.Campaign {
	rule := campaign.TriggerRule{Kind: campaign.ParseTriggerKind(r.TriggerKind)}
	switch rule.Kind {
	case campaign.TriggerDelay:
		rule.DelaySeconds = r.TriggerValue
	case campaign.TriggerScroll:
		rule.ScrollPercent = r.TriggerValue
	}
	return campaign.Campaign{
		ID:        r.ID,
		Trigger:   rule,
		Frequency: campaign.ParseFrequency(r.Frequency),
		IsActive:  r.IsActive,
		Content: campaign.Content{
			Title:        r.Title,
			Body:         r.Body,
			MediaURL:     r.MediaURL,
			CTALabel:     r.CTALabel,
			CTAURL:       r.CTAURL,
			EmailCapture: r.EmailCapture,
		},
	}
}
