// Package settings holds the process-wide settings snapshot read at send
// time. Callers load it once at startup and refresh it explicitly; readers
// always see a complete snapshot.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
)

// ErrNotFound is returned by repositories when no settings row exists yet.
var ErrNotFound = errors.New("settings not found")

// Repository persists the settings singleton.
type Repository interface {
	Load(ctx context.Context) (*domain.Settings, error)
	Save(ctx context.Context, s *domain.Settings) error
}

// Store caches the current settings.
type Store struct {
	repo    Repository
	current atomic.Pointer[domain.Settings]
}

// NewStore creates an empty store. Current returns zero settings until Load.
func NewStore(repo Repository) *Store {
	s := &Store{repo: repo}
	s.current.Store(&domain.Settings{})
	return s
}

// Load reads settings from the repository. A missing row leaves the zero
// value in place.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		logger.Info("no stored settings, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.current.Store(loaded)
	return nil
}

// Refresh reloads settings. On failure the previous snapshot is kept.
func (s *Store) Refresh(ctx context.Context) (domain.Settings, error) {
	if err := s.Load(ctx); err != nil {
		logger.Warn("settings refresh failed, keeping previous snapshot", "err", err)
		return s.Current(), err
	}
	return s.Current(), nil
}

// Current returns the active snapshot.
func (s *Store) Current() domain.Settings {
	return *s.current.Load()
}

// Update persists next and makes it current.
func (s *Store) Update(ctx context.Context, next domain.Settings) (domain.Settings, error) {
	next.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, &next); err != nil {
		return s.Current(), fmt.Errorf("save settings: %w", err)
	}
	s.current.Store(&next)
	return next, nil
}
