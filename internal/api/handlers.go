// Package api exposes campaign, audience, settings and suppression
// operations over HTTP. Handlers are thin: they decode, call one service
// operation and map its error to a status code.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/audience-dispatch/internal/pkg/httputil"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/delivery"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
	"github.com/ignite/audience-dispatch/internal/settings"
)

// Runner executes delivery runs.
type Runner interface {
	Send(ctx context.Context, id string) (*delivery.Result, error)
	Resend(ctx context.Context, id string) (*delivery.Result, error)
}

// Handlers holds the services behind the HTTP surface.
type Handlers struct {
	campaigns    *campaign.Service
	recipients   *campaign.RecipientBuilder
	runner       Runner
	audiences    *segmentation.Resolver
	settings     *settings.Store
	suppressions *suppression.Service
}

// NewHandlers wires the handlers. suppressions may be nil, in which case
// the suppression endpoints answer 404.
func NewHandlers(
	campaigns *campaign.Service,
	recipients *campaign.RecipientBuilder,
	runner Runner,
	audiences *segmentation.Resolver,
	store *settings.Store,
	suppressions *suppression.Service,
) *Handlers {
	return &Handlers{
		campaigns:    campaigns,
		recipients:   recipients,
		runner:       runner,
		audiences:    audiences,
		settings:     store,
		suppressions: suppressions,
	}
}

// writeError maps service errors to status codes. Anything unrecognized is
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, segmentation.ErrAudienceNotFound),
		errors.Is(err, suppression.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)

	case errors.Is(err, campaign.ErrConflict),
		errors.Is(err, campaign.ErrInvalidTransition):
		var details any
		var ce *campaign.ConflictError
		if errors.As(err, &ce) {
			details = map[string]string{"expected": string(ce.Expected), "actual": string(ce.Actual)}
		}
		httputil.ErrorCode(w, http.StatusConflict, "conflict", err.Error(), details)

	case errors.Is(err, campaign.ErrInvalidInput),
		errors.Is(err, campaign.ErrMissingAudience),
		errors.Is(err, campaign.ErrMissingContent),
		errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrSnapshotFrozen),
		errors.Is(err, campaign.ErrNotEditable):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "validation", err.Error(), nil)

	case errors.Is(err, segmentation.ErrInvalidRules):
		var details any
		var re *segmentation.RulesError
		if errors.As(err, &re) {
			details = map[string][]string{"problems": re.Problems}
		}
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_rules", err.Error(), details)

	default:
		httputil.InternalError(w, err)
	}
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return httputil.Decode(w, r, dst)
}
