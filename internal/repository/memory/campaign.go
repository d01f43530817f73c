package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct{ s *Store }

var _ campaign.Repository = (*CampaignRepo)(nil)

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Subject), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *c)
	}
	sortByCreatedDesc(out)
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *CampaignRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if c.Status != domain.CampaignQueued {
			continue
		}
		if c.ScheduledAt != nil && c.ScheduledAt.After(now) {
			continue
		}
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		return "", fmt.Errorf("id required")
	}
	if _, exists := r.s.campaigns[c.ID]; exists {
		return "", fmt.Errorf("campaign %s already exists", c.ID)
	}
	cp := *c
	now := r.s.now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.Status == "" {
		cp.Status = domain.CampaignDraft
	}
	r.s.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (r *CampaignRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft {
		return campaign.ErrNotEditable
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.FromName != nil {
		c.FromName = *u.FromName
	}
	if u.FromEmail != nil {
		c.FromEmail = *u.FromEmail
	}
	if u.AudienceID != nil {
		aid := *u.AudienceID
		c.AudienceID = &aid
	}
	if u.HTMLContent != nil {
		c.HTMLContent = *u.HTMLContent
	}
	if u.TextContent != nil {
		c.TextContent = *u.TextContent
	}
	if u.ScheduledAt != nil {
		at := *u.ScheduledAt
		c.ScheduledAt = &at
	}
	c.UpdatedAt = r.s.now()
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCanceled {
		return campaign.ErrNotEditable
	}
	delete(r.s.campaigns, id)
	delete(r.s.recipients, id)
	delete(r.s.recipOrder, id)
	return nil
}

func (r *CampaignRepo) CompareAndSetStatus(_ context.Context, id string, from, to domain.CampaignStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	now := r.s.now()
	c.Status = to
	c.UpdatedAt = now
	switch to {
	case domain.CampaignSending:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	case domain.CampaignSent, domain.CampaignFailed, domain.CampaignCanceled:
		c.CompletedAt = &now
	}
	return true, nil
}
