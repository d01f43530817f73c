package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

// ContactRepo reads contacts and evaluates audience rules in SQL.
type ContactRepo struct{ db *sql.DB }

var (
	_ campaign.ContactReader       = (*ContactRepo)(nil)
	_ segmentation.ContactQuerier = (*ContactRepo)(nil)
)

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) GetMany(ctx context.Context, ids []string) ([]domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, name, tags, unsubscribed_at, created_at
		FROM contacts
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var (
			c     domain.Contact
			unsub sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, pq.Array(&c.Tags), &unsub, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.UnsubscribedAt = timePtr(unsub)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) CountContacts(ctx context.Context, q segmentation.ContactQuery) (int, error) {
	query, args := segmentation.NewQueryBuilder().BuildCountQuery(q)
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepo) ContactIDs(ctx context.Context, q segmentation.ContactQuery) ([]string, error) {
	query, args := segmentation.NewQueryBuilder().BuildIDQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select contact ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contact id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AudienceRepo implements segmentation.AudienceRepository.
type AudienceRepo struct{ db *sql.DB }

var _ segmentation.AudienceRepository = (*AudienceRepo)(nil)

// NewAudienceRepo creates a Postgres-backed audience repository.
func NewAudienceRepo(db *sql.DB) *AudienceRepo { return &AudienceRepo{db: db} }

// Get decodes the stored rules leniently: malformed leaves become unknown
// conditions rather than failing the load.
func (r *AudienceRepo) Get(ctx context.Context, id string) (*domain.Audience, error) {
	var (
		a     domain.Audience
		rules []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, rules, member_count, created_at, updated_at
		FROM audiences WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Description, &rules, &a.MemberCount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segmentation.ErrAudienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audience: %w", err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &a.Rules); err != nil {
			return nil, fmt.Errorf("decode audience %s rules: %w", id, err)
		}
	}
	return &a, nil
}

func (r *AudienceRepo) UpdateMemberCount(ctx context.Context, id string, count int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE audiences SET member_count = $2, updated_at = NOW() WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("update member count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return segmentation.ErrAudienceNotFound
	}
	return nil
}
