package engine

import (
	"context"

	"popup-engine/internal/campaign"
	"popup-engine/internal/trigger"
)

// State of one visit's arbitration.
type State int

const (
	Idle State = iota
	Filtering
	Armed
	Won
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Filtering:
		return "filtering"
	case Armed:
		return "armed"
	case Won:
		return "won"
	case TornDown:
		return "torn_down"
	}
	return "unknown"
}

// Source returns the active campaigns for a visit. The result is treated as
// a point-in-time snapshot.
type Source interface {
	ActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]campaign.Campaign, error)

func (f SourceFunc) ActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return f(ctx)
}

// FrequencyCapper is the frequency cap store as seen by the coordinator.
type FrequencyCapper interface {
	IsEligible(ctx context.Context, campaignID string, policy campaign.FrequencyPolicy) bool
	RecordShown(ctx context.Context, campaignID string, policy campaign.FrequencyPolicy)
}

// Display receives the winner. Show is called with the coordinator locked
// and must not call back into it.
type Display interface {
	Show(c campaign.Campaign) bool
}

// MonitorFactory picks the monitor for a trigger rule.
type MonitorFactory interface {
	For(rule campaign.TriggerRule) trigger.Monitor
}
