package display

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popup-engine/internal/campaign"
)

type recRenderer struct{ shown []string }

func (r *recRenderer) Render(c campaign.Campaign) { r.shown = append(r.shown, c.ID) }

type recSink struct {
	urls   []string
	emails []string
}

func (s *recSink) OpenURL(_ context.Context, _, u string) error {
	s.urls = append(s.urls, u)
	return nil
}

func (s *recSink) Subscribe(_ context.Context, _, e string) error {
	s.emails = append(s.emails, e)
	return nil
}

func promo(id string) campaign.Campaign {
	return campaign.Campaign{ID: id, IsActive: true, Content: campaign.Content{Title: "Sale", CTAURL: "https://shop.example/sale"}}
}

func TestSlot_ShowsAtMostOne(t *testing.T) {
	r := &recRenderer{}
	s := NewSlot(r, nil, nil, zerolog.Nop())

	assert.True(t, s.Show(promo("a")))
	assert.False(t, s.Show(promo("b")))
	assert.Equal(t, []string{"a"}, r.shown)

	c, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "a", c.ID)
}

func TestSlot_DismissRunsOnCloseOnce(t *testing.T) {
	closes := 0
	s := NewSlot(&recRenderer{}, nil, func() { closes++ }, zerolog.Nop())

	s.Dismiss() // nothing shown yet
	assert.Equal(t, 0, closes)

	s.Show(promo("a"))
	s.Dismiss()
	s.Dismiss()
	assert.Equal(t, 1, closes)

	_, ok := s.Active()
	assert.False(t, ok)
	assert.False(t, s.Show(promo("b")), "a dismissed slot must not show again")
}

func TestSlot_HandleForwardsIntents(t *testing.T) {
	tests := []struct {
		name       string
		intent     Intent
		wantURLs   []string
		wantEmails []string
	}{
		{"dismissed", Intent{Kind: Dismissed}, nil, nil},
		{"action with target", Intent{Kind: ActionInvoked, TargetURL: "https://x.example"}, []string{"https://x.example"}, nil},
		{"action falls back to cta", Intent{Kind: ActionInvoked}, []string{"https://shop.example/sale"}, nil},
		{"subscribed unvalidated", Intent{Kind: Subscribed, Email: "not-an-email"}, nil, []string{"not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recSink{}
			closes := 0
			s := NewSlot(&recRenderer{}, sink, func() { closes++ }, zerolog.Nop())
			s.Show(promo("a"))

			s.Handle(context.Background(), tt.intent)
			s.Handle(context.Background(), tt.intent)

			assert.Equal(t, tt.wantURLs, sink.urls)
			assert.Equal(t, tt.wantEmails, sink.emails)
			assert.Equal(t, 1, closes)
		})
	}
}

func TestWebhookSink_Subscribe(t *testing.T) {
	var got subscribePayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL, zerolog.Nop())
	require.NoError(t, sink.Subscribe(context.Background(), "c1", "a@b.example"))
	assert.Equal(t, subscribePayload{CampaignID: "c1", Email: "a@b.example"}, got)
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL, zerolog.Nop()).Subscribe(context.Background(), "c1", "x")
	assert.ErrorContains(t, err, "unexpected status 502")
}
