package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/httputil"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

type updateCampaignRequest struct {
	Subject     *string    `json:"subject"`
	FromName    *string    `json:"from_name"`
	FromEmail   *string    `json:"from_email"`
	AudienceID  *string    `json:"audience_id"`
	HTMLContent *string    `json:"html_content"`
	TextContent *string    `json:"text_content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type scheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// ListCampaigns handles GET /api/campaigns?status=&search=&limit=&offset=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r, 50, 200)
	list, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, ListResponse{Data: list, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// CreateCampaign handles POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign handles PATCH /api/campaigns/{id}. Only drafts are editable.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := h.campaigns.Update(r.Context(), id, campaign.UpdateFields{
		Subject:     req.Subject,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		AudienceID:  req.AudienceID,
		HTMLContent: req.HTMLContent,
		TextContent: req.TextContent,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.GetCampaign(w, r)
}

// DeleteCampaign handles DELETE /api/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ScheduleCampaign handles POST /api/campaigns/{id}/schedule with an
// optional {"scheduled_at": ...} body.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CancelCampaign handles POST /api/campaigns/{id}/cancel
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.campaigns.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.GetCampaign(w, r)
}

// DuplicateCampaign handles POST /api/campaigns/{id}/duplicate
func (h *Handlers) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, c)
}

// SendCampaign handles POST /api/campaigns/{id}/send. The run executes
// inline; a client disconnect does not abort it.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.runner.Send(r.Context(), id)
	if err != nil {
		logger.Warn("send request failed", "campaign_id", id, "err", err)
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ResendCampaign handles POST /api/campaigns/{id}/resend
func (h *Handlers) ResendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.runner.Resend(r.Context(), id)
	if err != nil {
		logger.Warn("resend request failed", "campaign_id", id, "err", err)
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// PrepareRecipients handles POST /api/campaigns/{id}/recipients/prepare.
// It freezes the snapshot of a queued campaign ahead of sending, or returns
// the existing one. Drafts get a 409.
func (h *Handlers) PrepareRecipients(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.recipients.Build(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"campaign_id": c.ID,
		"recipients":  len(rows),
	})
}

// ListRecipients handles GET /api/campaigns/{id}/recipients?status=
func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	status := domain.DeliveryStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.DeliveryPending, domain.DeliverySent, domain.DeliveryFailed, domain.DeliveryBounced:
	default:
		httputil.BadRequest(w, "status must be one of pending, sent, failed, bounced")
		return
	}

	page := parsePage(r, 100, 1000)
	rows, err := h.campaigns.Recipients(r.Context(), chi.URLParam(r, "id"), campaign.RecipientFilter{
		Status: status,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.CampaignRecipient{}
	}
	httputil.OK(w, map[string]any{"data": rows, "limit": page.Limit, "offset": page.Offset})
}

// ListEvents handles GET /api/campaigns/{id}/events?limit=
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.campaigns.Events(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.CampaignEvent{}
	}
	httputil.OK(w, map[string]any{"data": events})
}
