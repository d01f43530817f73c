package segmentation

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/pkg/metrics"
)

// ContactQuery selects contacts matching Rules, plus the static members of
// StaticAudienceID when set.
type ContactQuery struct {
	Rules            domain.RuleTree
	StaticAudienceID string
}

// ContactQuerier is the storage port the resolver pushes queries down to.
// Implementations must apply Matches semantics and return distinct ids.
type ContactQuerier interface {
	CountContacts(ctx context.Context, q ContactQuery) (int, error)
	ContactIDs(ctx context.Context, q ContactQuery) ([]string, error)
}

// AudienceRepository loads stored audiences.
type AudienceRepository interface {
	// Get returns ErrAudienceNotFound if the audience doesn't exist.
	Get(ctx context.Context, id string) (*domain.Audience, error)

	// UpdateMemberCount stores the derived member count for display.
	UpdateMemberCount(ctx context.Context, id string, count int) error
}

// Resolver is the single path from an audience definition to contact ids.
type Resolver struct {
	audiences AudienceRepository
	contacts  ContactQuerier
}

// NewResolver creates a resolver over the given stores.
func NewResolver(audiences AudienceRepository, contacts ContactQuerier) *Resolver {
	return &Resolver{audiences: audiences, contacts: contacts}
}

// Preview counts the contacts an ad-hoc rule tree would match.
func (r *Resolver) Preview(ctx context.Context, rules domain.RuleTree) (int, error) {
	start := time.Now()
	n, err := r.contacts.CountContacts(ctx, ContactQuery{Rules: rules})
	metrics.ObservePreview(time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("preview: %w", err)
	}
	return n, nil
}

// PreviewAudience counts a stored audience, static members included.
func (r *Resolver) PreviewAudience(ctx context.Context, audienceID string) (int, error) {
	a, err := r.audiences.Get(ctx, audienceID)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := r.contacts.CountContacts(ctx, queryFor(a))
	metrics.ObservePreview(time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("preview audience %s: %w", audienceID, err)
	}
	return n, nil
}

// Resolve materializes the distinct contact ids of an audience.
func (r *Resolver) Resolve(ctx context.Context, audienceID string) ([]string, error) {
	a, err := r.audiences.Get(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	ids, err := r.contacts.ContactIDs(ctx, queryFor(a))
	if err != nil {
		return nil, fmt.Errorf("resolve audience %s: %w", audienceID, err)
	}
	ids = dedupe(ids)

	if err := r.audiences.UpdateMemberCount(ctx, a.ID, len(ids)); err != nil {
		logger.Warn("failed to update audience member count", "audience_id", a.ID, "err", err)
	}
	return ids, nil
}

func queryFor(a *domain.Audience) ContactQuery {
	return ContactQuery{Rules: a.Rules, StaticAudienceID: a.ID}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
