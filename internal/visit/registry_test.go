package visit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popup-engine/internal/campaign"
	"popup-engine/internal/clock"
	"popup-engine/internal/engine"
	"popup-engine/internal/kv"
	"popup-engine/internal/page"
)

func newTestRegistry(clk *clock.Manual, cs ...campaign.Campaign) *Registry {
	durable := map[string]*kv.Map{}
	return NewRegistry(Deps{
		Source: engine.SourceFunc(func(context.Context) ([]campaign.Campaign, error) { return cs, nil }),
		Durable: func(viewer string) kv.Bucket {
			if durable[viewer] == nil {
				durable[viewer] = kv.NewMap()
			}
			return durable[viewer]
		},
		Clock: clk,
		Log:   zerolog.Nop(),
	})
}

func welcome() campaign.Campaign {
	return campaign.Campaign{
		ID:        "welcome",
		Trigger:   campaign.Immediate(),
		Frequency: campaign.OncePerSession,
		IsActive:  true,
		Content:   campaign.Content{Title: "Welcome"},
	}
}

func TestRegistry_SessionCapAndBoundary(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	r := newTestRegistry(clk, welcome())
	req := StartRequest{SessionID: "s1", ViewerID: "v1", ViewportWidth: 1280}

	v1, err := r.Start(ctx, req)
	require.NoError(t, err)
	cmds := v1.Bus.Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, page.CommandShow, cmds[0].Type)
	assert.Equal(t, "welcome", cmds[0].CampaignID)
	assert.Equal(t, "Welcome", cmds[0].Content.Title)

	v2, err := r.Start(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, v2.Bus.Drain(), "already shown this session")
	assert.Equal(t, engine.Armed, v2.Coord.State())

	assert.True(t, r.EndSession("s1"))
	v3, err := r.Start(ctx, req)
	require.NoError(t, err)
	assert.Len(t, v3.Bus.Drain(), 1)
}

func TestRegistry_DelayFiresAfterStart(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	delayed := campaign.Campaign{ID: "later", Trigger: campaign.AfterDelay(10), Frequency: campaign.Always, IsActive: true}
	r := newTestRegistry(clk, delayed)

	v, err := r.Start(ctx, StartRequest{SessionID: "s", ViewportWidth: 1280})
	require.NoError(t, err)
	assert.Empty(t, v.Bus.Drain())

	clk.Advance(10 * time.Second)
	cmds := v.Bus.Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, "later", cmds[0].CampaignID)
}

func TestRegistry_EndDisarms(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	delayed := campaign.Campaign{ID: "later", Trigger: campaign.AfterDelay(10), Frequency: campaign.Always, IsActive: true}
	r := newTestRegistry(clk, delayed)

	v, err := r.Start(ctx, StartRequest{SessionID: "s"})
	require.NoError(t, err)
	require.NoError(t, r.End(v.ID))
	assert.ErrorIs(t, r.End(v.ID), ErrNotFound)

	_, err = r.Get(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, engine.TornDown, v.Coord.State())
	assert.Equal(t, 0, clk.Pending())
}

func TestRegistry_Expire(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	r := newTestRegistry(clk)

	old, err := r.Start(ctx, StartRequest{SessionID: "a"})
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)
	fresh, err := r.Start(ctx, StartRequest{SessionID: "b"})
	require.NoError(t, err)
	clk.Advance(15 * time.Minute)

	assert.Equal(t, 1, r.Expire(30*time.Minute))
	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)

	assert.Equal(t, []string{"a"}, r.ExpireSessions(30*time.Minute))
}

func TestRegistry_DismissTearsDown(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	r := newTestRegistry(clk, welcome())

	v, err := r.Start(ctx, StartRequest{SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, engine.Won, v.Coord.State())

	v.Slot.Dismiss()
	assert.Equal(t, engine.TornDown, v.Coord.State())
	assert.Equal(t, 0, r.Len())
	_, err = r.Get(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ActiveVisitKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	r := newTestRegistry(clk, welcome())

	v1, err := r.Start(ctx, StartRequest{SessionID: "s1", ViewportWidth: 1280})
	require.NoError(t, err)
	require.Len(t, v1.Bus.Drain(), 1)

	// the viewer keeps scrolling on the same page well past the session ttl
	for i := 0; i < 7; i++ {
		clk.Advance(5 * time.Minute)
		_, err := r.Get(v1.ID)
		require.NoError(t, err)
		assert.Zero(t, r.Expire(30*time.Minute))
		assert.Empty(t, r.ExpireSessions(30*time.Minute))
	}

	v2, err := r.Start(ctx, StartRequest{SessionID: "s1", ViewportWidth: 1280})
	require.NoError(t, err)
	assert.Empty(t, v2.Bus.Drain(), "still the same session")
}

func TestRegistry_UnknownTimezoneFallsBack(t *testing.T) {
	clk := clock.NewManual(time.Now())
	r := newTestRegistry(clk, welcome())
	v, err := r.Start(context.Background(), StartRequest{SessionID: "s", Timezone: "Mars/Olympus"})
	require.NoError(t, err)
	assert.Len(t, v.Bus.Drain(), 1)
}
