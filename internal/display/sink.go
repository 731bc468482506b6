package display

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LogSink records viewer actions in the log only.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) OpenURL(_ context.Context, campaignID, targetURL string) error {
	s.Log.Info().Str("campaign_id", campaignID).Str("target_url", targetURL).Msg("open url")
	return nil
}

func (s LogSink) Subscribe(_ context.Context, campaignID, _ string) error {
	s.Log.Info().Str("campaign_id", campaignID).Msg("subscription requested")
	return nil
}

// WebhookSink posts subscriptions to an external endpoint. URL opens are
// performed by the client and only logged here.
type WebhookSink struct {
	LogSink
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string, logger zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		LogSink: LogSink{Log: logger},
		URL:     url,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type subscribePayload struct {
	CampaignID string `json:"campaign_id"`
	Email      string `json:"email"`
}

func (s *WebhookSink) Subscribe(ctx context.Context, campaignID, email string) error {
	body, err := json.Marshal(subscribePayload{CampaignID: campaignID, Email: email})
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post subscription: unexpected status %d", resp.StatusCode)
	}
	s.Log.Info().Str("campaign_id", campaignID).Msg("subscription forwarded")
	return nil
}
