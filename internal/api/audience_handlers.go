package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/httputil"
	"github.com/ignite/audience-dispatch/internal/segmentation"
)

type previewRequest struct {
	Rules domain.RuleTree `json:"rules"`
}

type previewResponse struct {
	AudienceID string `json:"audience_id,omitempty"`
	Count      int    `json:"count"`
}

// PreviewRules handles POST /api/audiences/preview. The body carries an
// ad-hoc rule tree; trees with empty groups or leaves that cannot be
// understood are rejected with 400 and the list of problems.
func (h *Handlers) PreviewRules(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := segmentation.CheckRules(req.Rules); err != nil {
		writeError(w, err)
		return
	}
	n, err := h.audiences.Preview(r.Context(), req.Rules)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, previewResponse{Count: n})
}

// PreviewAudience handles GET /api/audiences/{id}/preview
func (h *Handlers) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.audiences.PreviewAudience(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, previewResponse{AudienceID: id, Count: n})
}
