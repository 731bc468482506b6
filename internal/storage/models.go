package storage

import (
	"context"

	"popup-engine/internal/kv"
)

// CampaignRow is one popup_campaigns row.
type CampaignRow struct {
	ID           string
	TriggerKind  string
	TriggerValue float64
	Frequency    string
	Title        string
	Body         string
	MediaURL     string
	CTALabel     string
	CTAURL       string
	EmailCapture bool
	IsActive     bool
}

// Backend is a campaign catalog plus the durable frequency medium.
type Backend interface {
	LoadActiveCampaigns(ctx context.Context) ([]CampaignRow, error)
	Frequency(viewerID string) kv.Bucket
	Close()
}

const selectActiveCampaigns = `
	SELECT id, trigger_kind, trigger_value, frequency,
	       title, body, media_url, cta_label, cta_url, email_capture, is_active
	FROM popup_campaigns
	WHERE is_active
	ORDER BY position, id
`
