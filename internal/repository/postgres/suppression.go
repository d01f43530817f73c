package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

var _ suppression.Repository = (*SuppressionRepo)(nil)

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE email = LOWER($1))`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

// FilterSuppressed checks a whole batch with one query.
func (r *SuppressionRepo) FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(emails) == 0 {
		return out, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM suppressions WHERE email = ANY($1)`,
		pq.Array(lowered),
	)
	if err != nil {
		return nil, fmt.Errorf("filter suppressions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[email] = struct{}{}
	}
	return out, rows.Err()
}

// Suppress keeps the first record for an address.
func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	var campaignID interface{}
	if s.CampaignID != "" {
		campaignID = s.CampaignID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, email, reason, source, detail, campaign_id, created_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, NOW())
		ON CONFLICT (email) DO NOTHING
	`, s.ID, s.Email, s.Reason, s.Source, s.Detail, campaignID)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM suppressions WHERE email = LOWER($1)`, email)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if f.Reason != "" {
		args = append(args, f.Reason)
		where += fmt.Sprintf(" AND reason = $%d", len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where += fmt.Sprintf(" AND source = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, email, reason, source, detail, COALESCE(campaign_id::text, ''), created_at
		FROM suppressions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.Email, &s.Reason, &s.Source, &s.Detail, &s.CampaignID, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
