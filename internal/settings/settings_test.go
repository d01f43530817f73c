package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
)

type stubRepo struct {
	stored *domain.Settings
	err    error
}

func (r *stubRepo) Load(context.Context) (*domain.Settings, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.stored == nil {
		return nil, ErrNotFound
	}
	cp := *r.stored
	return &cp, nil
}

func (r *stubRepo) Save(_ context.Context, s *domain.Settings) error {
	if r.err != nil {
		return r.err
	}
	cp := *s
	r.stored = &cp
	return nil
}

func TestLoadMissingKeepsDefaults(t *testing.T) {
	s := NewStore(&stubRepo{})
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, domain.Settings{}, s.Current())
}

func TestRefreshPicksUpChanges(t *testing.T) {
	repo := &stubRepo{stored: &domain.Settings{DefaultLink: "https://a.example"}}
	s := NewStore(repo)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, "https://a.example", s.Current().DefaultLink)

	repo.stored.DefaultLink = "https://b.example"
	assert.Equal(t, "https://a.example", s.Current().DefaultLink, "no implicit reload")

	got, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", got.DefaultLink)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	repo := &stubRepo{stored: &domain.Settings{DiscountCode: "SAVE10"}}
	s := NewStore(repo)
	require.NoError(t, s.Load(context.Background()))

	repo.err = errors.New("db down")
	got, err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "SAVE10", got.DiscountCode)
}

func TestUpdatePersists(t *testing.T) {
	repo := &stubRepo{}
	s := NewStore(repo)

	got, err := s.Update(context.Background(), domain.Settings{WebhookURL: "https://hooks.example/x"})
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.Equal(t, "https://hooks.example/x", repo.stored.WebhookURL)
	assert.Equal(t, got, s.Current())
}
