package suppression

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, normalize(email))
}

// FilterSuppressed returns the suppressed addresses among emails, normalized.
func (s *Service) FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(emails))
	norm := make([]string, 0, len(emails))
	for _, e := range emails {
		e = normalize(e)
		if _, dup := seen[e]; e == "" || dup {
			continue
		}
		seen[e] = struct{}{}
		norm = append(norm, e)
	}
	if len(norm) == 0 {
		return map[string]struct{}{}, nil
	}
	return s.repo.FilterSuppressed(ctx, norm)
}

// Suppress adds an email to the suppression list. Idempotent: if the email
// is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, detail, campaignID string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Suppress(ctx, &domain.Suppression{
		ID:         uuid.New().String(),
		Email:      email,
		Reason:     reason,
		Source:     source,
		Detail:     detail,
		CampaignID: campaignID,
	})
}

// SuppressBounce records a permanent delivery failure.
func (s *Service) SuppressBounce(ctx context.Context, email, campaignID, detail string) error {
	return s.Suppress(ctx, email, domain.ReasonHardBounce, domain.SourceDelivery, detail, campaignID)
}

// Remove deletes a suppression entry. Returns an error if the email is not suppressed.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Remove(ctx, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}

// Stats returns aggregate counts grouped by reason and source.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	BySource map[string]int `json:"by_source"`
}

// GetStats computes suppression statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
