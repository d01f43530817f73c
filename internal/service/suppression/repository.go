package suppression

import (
	"context"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Repository defines the data access contract for the suppression list.
type Repository interface {
	// IsSuppressed returns true if the email is on the suppression list.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// FilterSuppressed returns the subset of the lowercased emails that is
	// on the suppression list.
	FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error)

	// Suppress adds an email to the suppression list. If it already exists,
	// the existing record is preserved (idempotent).
	Suppress(ctx context.Context, s *domain.Suppression) error

	// Remove deletes a suppression entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, email string) error

	// List returns suppression entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason string
	Source string
	Limit  int
	Offset int
}
