package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popup-engine/internal/campaign"
	"popup-engine/internal/storage"
)

type MockLoader struct {
	rows []storage.CampaignRow
	err  error
}

func (m *MockLoader) LoadActiveCampaigns(context.Context) ([]storage.CampaignRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func TestCatalog_NotLoaded(t *testing.T) {
	c := New(zerolog.Nop())
	_, err := c.ActiveCampaigns(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestCatalog_Refresh(t *testing.T) {
	ctx := context.Background()
	c := New(zerolog.Nop())
	loader := &MockLoader{rows: []storage.CampaignRow{
		{ID: "1", TriggerKind: "delay", TriggerValue: 5, Frequency: "once_per_day", Title: "Spring", IsActive: true},
		{ID: "2", TriggerKind: "Scroll", TriggerValue: 40, Frequency: "session", IsActive: true},
		{ID: "3", TriggerKind: "exit_intent", Frequency: "", IsActive: true},
	}}
	require.NoError(t, c.Refresh(ctx, loader))

	got, err := c.ActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, campaign.AfterDelay(5), got[0].Trigger)
	assert.Equal(t, campaign.OncePerCalendarDay, got[0].Frequency)
	assert.Equal(t, "Spring", got[0].Content.Title)
	assert.Equal(t, campaign.OnScrollDepth(40), got[1].Trigger)
	assert.Equal(t, campaign.OncePerSession, got[1].Frequency)
	assert.Equal(t, campaign.OnExitIntent(), got[2].Trigger)
	assert.Equal(t, campaign.Always, got[2].Frequency)

	// failed refresh keeps the previous snapshot
	require.Error(t, c.Refresh(ctx, &MockLoader{err: errors.New("conn reset")}))
	got, err = c.ActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := New(zerolog.Nop())
	c.Set([]campaign.Campaign{{ID: "a", IsActive: true}})

	got, _ := c.ActiveCampaigns(context.Background())
	got[0].ID = "mutated"

	again, _ := c.ActiveCampaigns(context.Background())
	assert.Equal(t, "a", again[0].ID)
}
