package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

// RecipientBuilder freezes a campaign's audience into pending recipient rows.
//
// Snapshots are only taken once a campaign has left draft, so a draft's
// audience can still change freely. The first successful Build fixes
// membership. Later calls return the existing rows unchanged, so
// re-preparing a queued campaign is harmless.
type RecipientBuilder struct {
	audiences   AudienceResolver
	contacts    ContactReader
	recipients  RecipientRepository
	suppression sending.SuppressionChecker
}

// NewRecipientBuilder creates a builder. suppression may be nil.
func NewRecipientBuilder(audiences AudienceResolver, contacts ContactReader, recipients RecipientRepository, suppression sending.SuppressionChecker) *RecipientBuilder {
	return &RecipientBuilder{
		audiences:   audiences,
		contacts:    contacts,
		recipients:  recipients,
		suppression: suppression,
	}
}

// Build returns the campaign's snapshot, creating it if absent.
func (b *RecipientBuilder) Build(ctx context.Context, c *domain.Campaign) ([]domain.CampaignRecipient, error) {
	switch c.Status {
	case domain.CampaignSent, domain.CampaignFailed, domain.CampaignCanceled:
		return nil, fmt.Errorf("%w: campaign %s is %s", ErrSnapshotFrozen, c.ID, c.Status)
	case domain.CampaignDraft:
		return nil, &ConflictError{CampaignID: c.ID, Op: "prepare", Expected: domain.CampaignQueued, Actual: c.Status}
	}

	existing, err := b.recipients.Count(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	if existing > 0 {
		return b.recipients.List(ctx, c.ID, RecipientFilter{})
	}

	if c.AudienceID == nil {
		return nil, ErrMissingAudience
	}
	ids, err := b.audiences.Resolve(ctx, *c.AudienceID)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	eligible, err := b.eligible(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoRecipients
	}

	n, err := b.recipients.Insert(ctx, c.ID, eligible)
	if err != nil {
		return nil, fmt.Errorf("insert recipients: %w", err)
	}
	logger.Info("recipient snapshot created",
		"campaign_id", c.ID, "resolved", len(ids), "eligible", len(eligible), "inserted", n)

	return b.recipients.List(ctx, c.ID, RecipientFilter{})
}

// eligible keeps resolved ids whose contact exists, is subscribed and is
// not suppressed, preserving resolution order and dropping duplicates.
func (b *RecipientBuilder) eligible(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	contacts, err := b.contacts.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	byID := make(map[string]*domain.Contact, len(contacts))
	emails := make([]string, 0, len(contacts))
	for i := range contacts {
		byID[contacts[i].ID] = &contacts[i]
		emails = append(emails, contacts[i].Email)
	}

	var suppressed map[string]struct{}
	if b.suppression != nil {
		suppressed, err = b.suppression.FilterSuppressed(ctx, emails)
		if err != nil {
			return nil, fmt.Errorf("suppression check: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ct, ok := byID[id]
		if !ok || ct.IsUnsubscribed() {
			continue
		}
		if _, blocked := suppressed[strings.ToLower(strings.TrimSpace(ct.Email))]; blocked {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
