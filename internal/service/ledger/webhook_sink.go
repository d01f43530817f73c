package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/httpretry"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body keyed with the
// settings webhook secret.
const SignatureHeader = "X-Campaign-Signature"

// SettingsSource exposes the current settings snapshot.
type SettingsSource interface {
	Current() domain.Settings
}

// WebhookSink posts events to the webhook URL held in settings. It reads
// settings on every publish so a refresh takes effect immediately. Events
// are skipped while no URL is configured.
type WebhookSink struct {
	settings SettingsSource
	client   httpretry.HTTPDoer
}

// NewWebhookSink creates a sink that posts through client (a RetryClient in
// production).
func NewWebhookSink(settings SettingsSource, client httpretry.HTTPDoer) *WebhookSink {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &WebhookSink{settings: settings, client: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Publish posts the event as JSON.
func (s *WebhookSink) Publish(ctx context.Context, e domain.CampaignEvent) error {
	cfg := s.settings.Current()
	if cfg.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(cfg.WebhookSecret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
