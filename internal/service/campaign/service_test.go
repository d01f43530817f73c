package campaign_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/repository/memory"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
)

func TestCreate(t *testing.T) {
	e := newEnv(t)
	c := e.draft(t)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	require.NotNil(t, c.AudienceID)
	assert.Equal(t, "vips", *c.AudienceID)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), campaign.CreateInput{})
	assert.ErrorIs(t, err, campaign.ErrInvalidInput)

	_, err = e.svc.Create(context.Background(), campaign.CreateInput{Subject: "x", FromEmail: "nope"})
	assert.ErrorIs(t, err, campaign.ErrInvalidInput)
}

func TestGetNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestScheduleMovesDraftToQueued(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)
	assert.Equal(t, domain.CampaignQueued, c.Status)

	events, err := e.svc.Events(context.Background(), c.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventQueued, events[0].Type)
	assert.Contains(t, events[0].Detail, `"audience_size":3`)
}

func TestScheduleStoresSendTime(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	c := e.draft(t)
	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	got, err := e.svc.Schedule(context.Background(), c.ID, &at)
	require.NoError(t, err)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, at.Equal(*got.ScheduledAt))
}

func TestScheduleValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("no content", func(t *testing.T) {
		e := newEnv(t)
		e.seedVIPs()
		c, err := e.svc.Create(ctx, campaign.CreateInput{Subject: "s", AudienceID: "vips"})
		require.NoError(t, err)
		_, err = e.svc.Schedule(ctx, c.ID, nil)
		assert.ErrorIs(t, err, campaign.ErrMissingContent)
	})

	t.Run("render error", func(t *testing.T) {
		store := memory.New()
		resolver := segmentation.NewResolver(store.Audiences(), store.Contacts())
		svc := campaign.NewService(store.Campaigns(), store.Recipients(), ledger.New(store.Events()),
			bodyRenderer{err: errors.New("bad template")}, resolver)
		c, err := svc.Create(ctx, campaign.CreateInput{Subject: "s", AudienceID: "vips", HTMLContent: "x"})
		require.NoError(t, err)
		_, err = svc.Schedule(ctx, c.ID, nil)
		assert.ErrorIs(t, err, campaign.ErrMissingContent)
	})

	t.Run("no audience", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.svc.Create(ctx, campaign.CreateInput{Subject: "s", HTMLContent: "x"})
		require.NoError(t, err)
		_, err = e.svc.Schedule(ctx, c.ID, nil)
		assert.ErrorIs(t, err, campaign.ErrMissingAudience)
	})

	t.Run("audience matches nobody", func(t *testing.T) {
		e := newEnv(t)
		e.store.PutAudience(domain.Audience{ID: "vips"})
		c := e.draft(t)
		_, err := e.svc.Schedule(ctx, c.ID, nil)
		assert.ErrorIs(t, err, campaign.ErrNoRecipients)

		got, _ := e.svc.Get(ctx, c.ID)
		assert.Equal(t, domain.CampaignDraft, got.Status, "rejected before any transition")
	})
}

func TestScheduleTwiceConflicts(t *testing.T) {
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)
	_, err := e.svc.Schedule(context.Background(), c.ID, nil)
	requireConflict(t, err, domain.CampaignQueued)
}

func TestCancelOnlyWhileQueued(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()

	draft := e.draft(t)
	requireConflict(t, e.svc.Cancel(ctx, draft.ID), domain.CampaignDraft)

	q := e.queued(t)
	require.NoError(t, e.svc.Cancel(ctx, q.ID))
	got, _ := e.svc.Get(ctx, q.ID)
	assert.Equal(t, domain.CampaignCanceled, got.Status)
	assert.NotNil(t, got.CompletedAt)

	requireConflict(t, e.svc.Cancel(ctx, q.ID), domain.CampaignCanceled)
}

func TestCancelWhileSendingConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)
	require.NoError(t, e.svc.Claim(ctx, c.ID))

	requireConflict(t, e.svc.Cancel(ctx, c.ID), domain.CampaignSending)
	got, _ := e.svc.Get(ctx, c.ID)
	assert.Equal(t, domain.CampaignSending, got.Status)
}

func TestClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	c := e.queued(t)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.svc.Claim(ctx, c.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, campaign.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	src := e.queued(t)
	_, err := e.builder.Build(ctx, src)
	require.NoError(t, err)

	cp, err := e.svc.Duplicate(ctx, src.ID)
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, domain.CampaignDraft, cp.Status)
	assert.Equal(t, "Spring sale (Copy)", cp.Subject)
	assert.Equal(t, src.HTMLContent, cp.HTMLContent)
	assert.Equal(t, *src.AudienceID, *cp.AudienceID)
	assert.Nil(t, cp.ScheduledAt)

	rows, err := e.svc.Recipients(ctx, cp.ID, campaign.RecipientFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	events, err := e.svc.Events(ctx, cp.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	srcEvents, _ := e.svc.Events(ctx, src.ID, 0)
	assert.Equal(t, domain.EventDuplicated, srcEvents[0].Type)
}

func TestUpdateOnlyDraft(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()

	d := e.draft(t)
	subject := "Summer sale"
	require.NoError(t, e.svc.Update(ctx, d.ID, campaign.UpdateFields{Subject: &subject}))
	got, _ := e.svc.Get(ctx, d.ID)
	assert.Equal(t, "Summer sale", got.Subject)

	q := e.queued(t)
	assert.ErrorIs(t, e.svc.Update(ctx, q.ID, campaign.UpdateFields{Subject: &subject}), campaign.ErrNotEditable)

	empty := " "
	assert.ErrorIs(t, e.svc.Update(ctx, d.ID, campaign.UpdateFields{Subject: &empty}), campaign.ErrInvalidInput)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()

	d := e.draft(t)
	require.NoError(t, e.svc.Delete(ctx, d.ID))
	_, err := e.svc.Get(ctx, d.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	q := e.queued(t)
	assert.Error(t, e.svc.Delete(ctx, q.ID))
}

func TestListWithFilter(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedVIPs()
	e.draft(t)
	e.queued(t)

	list, total, err := e.svc.List(ctx, campaign.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = e.svc.List(ctx, campaign.ListFilter{Status: "queued"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.CampaignQueued, list[0].Status)
}

func TestTransitionTable(t *testing.T) {
	legal := [][2]domain.CampaignStatus{
		{domain.CampaignDraft, domain.CampaignQueued},
		{domain.CampaignQueued, domain.CampaignSending},
		{domain.CampaignQueued, domain.CampaignCanceled},
		{domain.CampaignSending, domain.CampaignSent},
		{domain.CampaignSending, domain.CampaignFailed},
		{domain.CampaignSending, domain.CampaignQueued},
		{domain.CampaignSent, domain.CampaignSending},
		{domain.CampaignFailed, domain.CampaignSending},
	}
	for _, p := range legal {
		assert.True(t, campaign.CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	illegal := [][2]domain.CampaignStatus{
		{domain.CampaignDraft, domain.CampaignSending},
		{domain.CampaignDraft, domain.CampaignCanceled},
		{domain.CampaignSending, domain.CampaignCanceled},
		{domain.CampaignCanceled, domain.CampaignQueued},
		{domain.CampaignFailed, domain.CampaignQueued},
		{domain.CampaignSent, domain.CampaignQueued},
	}
	for _, p := range illegal {
		assert.False(t, campaign.CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}
}
