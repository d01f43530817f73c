package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/settings"
)

// SettingsRepo reads and writes the singleton settings row.
type SettingsRepo struct{ db *sql.DB }

var _ settings.Repository = (*SettingsRepo)(nil)

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) Load(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	err := r.db.QueryRowContext(ctx, `
		SELECT default_link, discount_code, webhook_url, webhook_secret, updated_at
		FROM settings WHERE id = 1
	`).Scan(&s.DefaultLink, &s.DiscountCode, &s.WebhookURL, &s.WebhookSecret, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, s *domain.Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (id, default_link, discount_code, webhook_url, webhook_secret, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			default_link = EXCLUDED.default_link,
			discount_code = EXCLUDED.discount_code,
			webhook_url = EXCLUDED.webhook_url,
			webhook_secret = EXCLUDED.webhook_secret,
			updated_at = NOW()
	`, s.DefaultLink, s.DiscountCode, s.WebhookURL, s.WebhookSecret)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
