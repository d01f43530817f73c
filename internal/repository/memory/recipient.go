package memory

import (
	"context"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

// RecipientRepo implements campaign.RecipientRepository.
type RecipientRepo struct{ s *Store }

var _ campaign.RecipientRepository = (*RecipientRepo)(nil)

func (r *RecipientRepo) Insert(_ context.Context, campaignID string, contactIDs []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows, ok := r.s.recipients[campaignID]
	if !ok {
		rows = make(map[string]*domain.CampaignRecipient)
		r.s.recipients[campaignID] = rows
	}
	now := r.s.now()
	n := 0
	for _, id := range contactIDs {
		if _, exists := rows[id]; exists {
			continue
		}
		c, ok := r.s.contacts[id]
		if !ok {
			continue
		}
		rows[id] = &domain.CampaignRecipient{
			CampaignID: campaignID,
			ContactID:  id,
			Email:      c.Email,
			Name:       c.Name,
			Status:     domain.DeliveryPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		r.s.recipOrder[campaignID] = append(r.s.recipOrder[campaignID], id)
		n++
	}
	return n, nil
}

func (r *RecipientRepo) List(_ context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CampaignRecipient
	for _, id := range r.s.recipOrder[campaignID] {
		row := r.s.recipients[campaignID][id]
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		out = append(out, copyRecipient(row))
	}
	return page(out, f.Limit, f.Offset), nil
}

func (r *RecipientRepo) Count(_ context.Context, campaignID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.recipients[campaignID]), nil
}

func (r *RecipientRepo) MarkOutcome(_ context.Context, campaignID, contactID string, status domain.DeliveryStatus, attempts int, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.recipients[campaignID][contactID]
	if !ok || row.Status != domain.DeliveryPending {
		return false, nil
	}
	row.Status = status
	row.Attempts += attempts
	row.UpdatedAt = r.s.now()
	if lastErr != "" {
		e := lastErr
		row.LastError = &e
	} else {
		row.LastError = nil
	}
	return true, nil
}

func (r *RecipientRepo) ResetFailed(_ context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CampaignRecipient
	now := r.s.now()
	for _, id := range r.s.recipOrder[campaignID] {
		row := r.s.recipients[campaignID][id]
		if !row.Status.IsRetryable() {
			continue
		}
		row.Status = domain.DeliveryPending
		row.UpdatedAt = now
		out = append(out, copyRecipient(row))
	}
	return out, nil
}

func copyRecipient(row *domain.CampaignRecipient) domain.CampaignRecipient {
	cp := *row
	if row.LastError != nil {
		e := *row.LastError
		cp.LastError = &e
	}
	return cp
}
