package campaign_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

func contactIDs(rows []domain.CampaignRecipient) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ContactID)
	}
	return ids
}

func TestBuildCreatesPendingSnapshot(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)

	rows, err := e.builder.Build(context.Background(), c)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, contactIDs(rows))
	for _, r := range rows {
		assert.Equal(t, domain.DeliveryPending, r.Status)
		assert.NotEmpty(t, r.Email)
	}
}

func TestBuildExcludesUnsubscribedStaticMembers(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	// u is unsubscribed but pinned statically; b is both static and dynamic.
	e.store.AddStaticMembers("vips", "u", "b")
	c := e.queued(t)

	rows, err := e.builder.Build(context.Background(), c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, contactIDs(rows))
}

func TestBuildExcludesSuppressed(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	require.NoError(t, e.supp.SuppressBounce(context.Background(), "B@example.com", "old", "550"))
	c := e.queued(t)

	rows, err := e.builder.Build(context.Background(), c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, contactIDs(rows))
}

func TestBuildIsIdempotentAndFrozen(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)

	first, err := e.builder.Build(ctx, c)
	require.NoError(t, err)

	// The audience grows after the snapshot was taken.
	e.store.PutContact(domain.Contact{ID: "d", Email: "d@example.com", Tags: []string{"vip"}})

	second, err := e.builder.Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, contactIDs(first), contactIDs(second))

	n, _ := e.store.Recipients().Count(ctx, c.ID)
	assert.Equal(t, 3, n)
}

func TestSnapshotOutlivesContactDeletion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)
	_, err := e.builder.Build(ctx, c)
	require.NoError(t, err)

	e.store.DeleteContact("a")

	rows, err := e.svc.Recipients(ctx, c.ID, campaign.RecipientFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].ContactID)
	assert.Equal(t, "a@example.com", rows[0].Email)
}

func TestBuildEmptySet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.PutContact(domain.Contact{ID: "u", Email: "u@example.com", Tags: []string{"vip"}})
	e.store.PutAudience(domain.Audience{ID: "vips", Rules: domain.RuleTree{
		{Conditions: []domain.Condition{domain.TagCondition{Tag: "vip"}}},
	}})
	c := e.queued(t)

	// The only member unsubscribes between scheduling and the snapshot.
	gone := time.Now()
	e.store.PutContact(domain.Contact{ID: "u", Email: "u@example.com", Tags: []string{"vip"}, UnsubscribedAt: &gone})

	_, err := e.builder.Build(ctx, c)
	assert.ErrorIs(t, err, campaign.ErrNoRecipients)
}

func TestBuildRefusesDraft(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	e.store.PutContact(domain.Contact{ID: "z", Email: "z@example.com", Tags: []string{"other"}})
	e.store.PutAudience(domain.Audience{ID: "others", Rules: domain.RuleTree{
		{Conditions: []domain.Condition{domain.TagCondition{Tag: "other"}}},
	}})
	c := e.draft(t)

	_, err := e.builder.Build(ctx, c)
	requireConflict(t, err, domain.CampaignDraft)
	n, err := e.store.Recipients().Count(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The audience can still change, and the snapshot follows it.
	others := "others"
	require.NoError(t, e.svc.Update(ctx, c.ID, campaign.UpdateFields{AudienceID: &others}))
	c, err = e.svc.Schedule(ctx, c.ID, nil)
	require.NoError(t, err)

	rows, err := e.builder.Build(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, contactIDs(rows))
}

func TestBuildRefusesClosedCampaigns(t *testing.T) {
	e := newEnv(t)
	for _, s := range []domain.CampaignStatus{domain.CampaignSent, domain.CampaignFailed, domain.CampaignCanceled} {
		_, err := e.builder.Build(context.Background(), &domain.Campaign{ID: "x", Status: s})
		assert.ErrorIs(t, err, campaign.ErrSnapshotFrozen, string(s))
	}
}

func TestRecipientsFilterByStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)
	_, err := e.builder.Build(ctx, c)
	require.NoError(t, err)

	ok, err := e.store.Recipients().MarkOutcome(ctx, c.ID, "a", domain.DeliverySent, 1, "")
	require.NoError(t, err)
	require.True(t, ok)

	sent, err := e.svc.Recipients(ctx, c.ID, campaign.RecipientFilter{Status: domain.DeliverySent})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, contactIDs(sent))

	// A finalized row cannot be finalized again.
	ok, err = e.store.Recipients().MarkOutcome(ctx, c.ID, "a", domain.DeliveryFailed, 1, "late")
	require.NoError(t, err)
	assert.False(t, ok)
}
