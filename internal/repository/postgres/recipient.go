package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

// RecipientRepo implements campaign.RecipientRepository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

var _ campaign.RecipientRepository = (*RecipientRepo)(nil)

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// Insert relies on the (campaign_id, contact_id) primary key so rebuilding a
// snapshot never duplicates rows. Email and name are copied onto the row;
// later contact edits or deletes leave the snapshot alone.
func (r *RecipientRepo) Insert(ctx context.Context, campaignID string, contactIDs []string) (int, error) {
	if len(contactIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_recipients (campaign_id, contact_id, email, name, status, attempts, created_at, updated_at)
		SELECT $1, ids.id, c.email, c.name, 'pending', 0, NOW(), NOW()
		FROM unnest($2::uuid[]) WITH ORDINALITY AS ids(id, ord)
		JOIN contacts c ON c.id = ids.id
		ORDER BY ids.ord
		ON CONFLICT (campaign_id, contact_id) DO NOTHING
	`, campaignID, pq.Array(contactIDs))
	if err != nil {
		return 0, fmt.Errorf("insert recipients: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *RecipientRepo) List(ctx context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.CampaignRecipient, error) {
	q := `
		SELECT cr.campaign_id, cr.contact_id, cr.email, cr.name, cr.status,
		       cr.last_error, cr.attempts, cr.created_at, cr.updated_at
		FROM campaign_recipients cr
		WHERE cr.campaign_id = $1`
	args := []interface{}{campaignID}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND cr.status = $%d", len(args))
	}
	q += " ORDER BY cr.seq"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (r *RecipientRepo) Count(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

func (r *RecipientRepo) MarkOutcome(ctx context.Context, campaignID, contactID string, status domain.DeliveryStatus, attempts int, lastErr string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $3, attempts = attempts + $4, last_error = NULLIF($5, ''), updated_at = NOW()
		WHERE campaign_id = $1 AND contact_id = $2 AND status = 'pending'
	`, campaignID, contactID, status, attempts, lastErr)
	if err != nil {
		return false, fmt.Errorf("mark recipient %s: %w", status, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *RecipientRepo) ResetFailed(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH reset AS (
			UPDATE campaign_recipients
			SET status = 'pending', updated_at = NOW()
			WHERE campaign_id = $1 AND status IN ('failed','bounced')
			RETURNING campaign_id, contact_id, email, name, seq, status, last_error, attempts, created_at, updated_at
		)
		SELECT campaign_id, contact_id, email, name, status,
		       last_error, attempts, created_at, updated_at
		FROM reset
		ORDER BY seq
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("reset failed recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func scanRecipients(rows *sql.Rows) ([]domain.CampaignRecipient, error) {
	var out []domain.CampaignRecipient
	for rows.Next() {
		var (
			cr      domain.CampaignRecipient
			lastErr sql.NullString
		)
		if err := rows.Scan(&cr.CampaignID, &cr.ContactID, &cr.Email, &cr.Name, &cr.Status,
			&lastErr, &cr.Attempts, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if lastErr.Valid {
			cr.LastError = &lastErr.String
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
