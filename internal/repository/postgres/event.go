package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
)

// EventRepo implements ledger.Repository. Rows are append-only.
type EventRepo struct{ db *sql.DB }

var _ ledger.Repository = (*EventRepo)(nil)

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e *domain.CampaignEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_events (id, campaign_id, type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.CampaignID, e.Type, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *EventRepo) List(ctx context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, type, detail, created_at
		FROM campaign_events
		WHERE campaign_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignEvent
	for rows.Next() {
		var e domain.CampaignEvent
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Type, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
