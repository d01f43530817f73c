package api

import (
	"net/http"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/httputil"
)

type settingsRequest struct {
	DefaultLink  string `json:"default_link"`
	DiscountCode string `json:"discount_code"`
	WebhookURL   string `json:"webhook_url"`
	// An empty secret keeps the stored one.
	WebhookSecret string `json:"webhook_secret"`
}

type settingsResponse struct {
	domain.Settings
	WebhookSigned bool `json:"webhook_signed"`
}

func newSettingsResponse(s domain.Settings) settingsResponse {
	return settingsResponse{Settings: s, WebhookSigned: s.WebhookSecret != ""}
}

// GetSettings handles GET /api/settings. The webhook secret is never returned.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, newSettingsResponse(h.settings.Current()))
}

// UpdateSettings handles PUT /api/settings
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	next := domain.Settings{
		DefaultLink:   req.DefaultLink,
		DiscountCode:  req.DiscountCode,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	}
	if next.WebhookSecret == "" {
		next.WebhookSecret = h.settings.Current().WebhookSecret
	}
	saved, err := h.settings.Update(r.Context(), next)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, newSettingsResponse(saved))
}

// RefreshSettings handles POST /api/settings/refresh. It rereads the stored
// value so later sends use it.
func (h *Handlers) RefreshSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, newSettingsResponse(current))
}
