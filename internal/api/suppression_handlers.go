package api

import (
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/httputil"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
)

type suppressRequest struct {
	Email  string                   `json:"email"`
	Reason domain.SuppressionReason `json:"reason"`
	Detail string                   `json:"detail"`
}

func (h *Handlers) suppressionsEnabled(w http.ResponseWriter) bool {
	if h.suppressions == nil {
		httputil.NotFound(w, "suppression list is not configured")
		return false
	}
	return true
}

// ListSuppressions handles GET /api/suppressions?reason=&source=
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	page := parsePage(r, 100, 1000)
	list, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Reason: r.URL.Query().Get("reason"),
		Source: r.URL.Query().Get("source"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Suppression{}
	}
	httputil.OK(w, ListResponse{Data: list, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// AddSuppression handles POST /api/suppressions. Adding an address that is
// already suppressed keeps the original entry.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	var req suppressRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		httputil.Unprocessable(w, "email is not a valid address")
		return
	}
	switch req.Reason {
	case "":
		req.Reason = domain.ReasonManual
	case domain.ReasonManual, domain.ReasonUnsubscribe, domain.ReasonHardBounce:
	default:
		httputil.Unprocessable(w, "reason must be one of manual, unsubscribe, hard_bounce")
		return
	}

	if err := h.suppressions.Suppress(r.Context(), req.Email, req.Reason, domain.SourceManual, req.Detail, ""); err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"email": req.Email, "reason": string(req.Reason)})
}

// RemoveSuppression handles DELETE /api/suppressions/{email}
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	if err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "email")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// SuppressionStats handles GET /api/suppressions/stats
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	if !h.suppressionsEnabled(w) {
		return
	}
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, stats)
}
