package campaign_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/repository/memory"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
)

// bodyRenderer renders the campaign's stored content as-is.
type bodyRenderer struct{ err error }

func (r bodyRenderer) Render(_ context.Context, c *domain.Campaign) (*domain.RenderedContent, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RenderedContent{Subject: c.Subject, HTML: c.HTMLContent, Text: c.TextContent}, nil
}

type env struct {
	store   *memory.Store
	svc     *campaign.Service
	builder *campaign.RecipientBuilder
	supp    *suppression.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	resolver := segmentation.NewResolver(store.Audiences(), store.Contacts())
	supp := suppression.NewService(store.Suppressions())
	return &env{
		store:   store,
		svc:     campaign.NewService(store.Campaigns(), store.Recipients(), ledger.New(store.Events()), bodyRenderer{}, resolver),
		builder: campaign.NewRecipientBuilder(resolver, store.Contacts(), store.Recipients(), supp),
		supp:    supp,
	}
}

// seedVIPs stores three subscribed vip contacts, one unsubscribed vip and an
// audience "vips" matching subscribed vips.
func (e *env) seedVIPs() {
	gone := time.Now().Add(-time.Hour)
	e.store.PutContact(domain.Contact{ID: "a", Email: "a@example.com", Tags: []string{"vip"}})
	e.store.PutContact(domain.Contact{ID: "b", Email: "b@example.com", Tags: []string{"vip"}})
	e.store.PutContact(domain.Contact{ID: "c", Email: "c@example.com", Tags: []string{"vip", "new"}})
	e.store.PutContact(domain.Contact{ID: "u", Email: "u@example.com", Tags: []string{"vip"}, UnsubscribedAt: &gone})
	e.store.PutAudience(domain.Audience{ID: "vips", Name: "VIPs", Rules: domain.RuleTree{
		{Conditions: []domain.Condition{domain.TagCondition{Tag: "vip"}, domain.UnsubscribedCondition{Value: false}}},
	}})
}

func (e *env) draft(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := e.svc.Create(context.Background(), campaign.CreateInput{
		Subject:     "Spring sale",
		FromName:    "Shop",
		FromEmail:   "shop@example.com",
		AudienceID:  "vips",
		HTMLContent: "<p>hello</p>",
	})
	require.NoError(t, err)
	return c
}

func (e *env) queued(t *testing.T) *domain.Campaign {
	t.Helper()
	c := e.draft(t)
	c, err := e.svc.Schedule(context.Background(), c.ID, nil)
	require.NoError(t, err)
	return c
}

func requireConflict(t *testing.T, err error, actual domain.CampaignStatus) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, campaign.ErrConflict), "want conflict, got %v", err)
	var ce *campaign.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, actual, ce.Actual)
}
