package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
	"github.com/ignite/audience-dispatch/internal/settings"
)

// EventRepo implements ledger.Repository.
type EventRepo struct{ s *Store }

var _ ledger.Repository = (*EventRepo)(nil)

func (r *EventRepo) Append(_ context.Context, e *domain.CampaignEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events = append(r.s.events, *e)
	return nil
}

func (r *EventRepo) List(_ context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CampaignEvent
	// Walk backwards so equal timestamps still come out newest first.
	for i := len(r.s.events) - 1; i >= 0; i-- {
		if r.s.events[i].CampaignID == campaignID {
			out = append(out, r.s.events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

// SuppressionRepo implements suppression.Repository.
type SuppressionRepo struct{ s *Store }

var _ suppression.Repository = (*SuppressionRepo)(nil)

func (r *SuppressionRepo) IsSuppressed(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.suppressions[strings.ToLower(email)]
	return ok, nil
}

func (r *SuppressionRepo) FilterSuppressed(_ context.Context, emails []string) (map[string]struct{}, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]struct{})
	for _, e := range emails {
		key := strings.ToLower(e)
		if _, ok := r.s.suppressions[key]; ok {
			out[key] = struct{}{}
		}
	}
	return out, nil
}

func (r *SuppressionRepo) Suppress(_ context.Context, e *domain.Suppression) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := strings.ToLower(e.Email)
	if _, exists := r.s.suppressions[key]; exists {
		return nil
	}
	cp := *e
	cp.CreatedAt = r.s.now()
	r.s.suppressions[key] = &cp
	return nil
}

func (r *SuppressionRepo) Remove(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := r.s.suppressions[key]; !ok {
		return suppression.ErrNotFound
	}
	delete(r.s.suppressions, key)
	return nil
}

func (r *SuppressionRepo) List(_ context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Suppression
	for _, e := range r.s.suppressions {
		if f.Reason != "" && string(e.Reason) != f.Reason {
			continue
		}
		if f.Source != "" && string(e.Source) != f.Source {
			continue
		}
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), len(out), nil
}

// SettingsRepo implements settings.Repository.
type SettingsRepo struct{ s *Store }

var _ settings.Repository = (*SettingsRepo)(nil)

func (r *SettingsRepo) Load(context.Context) (*domain.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		return nil, settings.ErrNotFound
	}
	cp := *r.s.settings
	return &cp, nil
}

func (r *SettingsRepo) Save(_ context.Context, v *domain.Settings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *v
	r.s.settings = &cp
	return nil
}
