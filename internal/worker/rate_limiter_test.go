package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client)
	fixed := time.Date(2026, 5, 4, 10, 0, 30, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	return rl, mr
}

func TestRateLimiter_SecondWindow(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()
	limits := RateLimit{PerSecond: 2, PerMinute: 100, Daily: 1000}

	for i := 0; i < 2; i++ {
		ok, _, err := rl.CheckAndIncrement(ctx, "ses", limits, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, wait, err := rl.CheckAndIncrement(ctx, "ses", limits, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	usage, err := rl.Usage(ctx, "ses")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage["second"])
	assert.Equal(t, int64(2), usage["daily"])
}

func TestRateLimiter_DailyLimit(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()
	limits := RateLimit{Daily: 1}

	ok, _, err := rl.CheckAndIncrement(ctx, "ses", limits, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = rl.CheckAndIncrement(ctx, "ses", limits, 1)
	assert.ErrorIs(t, err, ErrDailyLimit)
}

func TestRateLimiter_DomainLimit(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()

	ok, _ := rl.CheckDomainLimit(ctx, "example.com", 1)
	assert.True(t, ok)
	ok, wait := rl.CheckDomainLimit(ctx, "example.com", 1)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	ok, _ = rl.CheckDomainLimit(ctx, "other.org", 1)
	assert.True(t, ok)
}

func TestThrottledSender_WaitsThenSends(t *testing.T) {
	rl, _ := newTestLimiter(t)
	var sent int32
	next := sending.SenderFunc(func(context.Context, *domain.EmailMessage) (*domain.SendResult, error) {
		atomic.AddInt32(&sent, 1)
		return &domain.SendResult{MessageID: "m"}, nil
	})
	ts := NewThrottledSender(next, rl, "ses", RateLimit{PerSecond: 1})

	var slept []time.Duration
	ts.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		// Move the clock forward so the next second window opens.
		base := rl.now()
		rl.now = func() time.Time { return base.Add(d) }
		return nil
	}

	ctx := context.Background()
	_, err := ts.Send(ctx, testMessage())
	require.NoError(t, err)
	_, err = ts.Send(ctx, testMessage())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&sent))
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestThrottledSender_DailyLimitIsTransient(t *testing.T) {
	rl, _ := newTestLimiter(t)
	next := sending.SenderFunc(func(context.Context, *domain.EmailMessage) (*domain.SendResult, error) {
		return &domain.SendResult{}, nil
	})
	ts := NewThrottledSender(next, rl, "ses", RateLimit{Daily: 1})

	_, err := ts.Send(context.Background(), testMessage())
	require.NoError(t, err)
	_, err = ts.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, sending.IsTransient(err))
}

func TestThrottledSender_RedisDownSendsAnyway(t *testing.T) {
	rl, mr := newTestLimiter(t)
	mr.Close()

	next := sending.SenderFunc(func(context.Context, *domain.EmailMessage) (*domain.SendResult, error) {
		return &domain.SendResult{MessageID: "m"}, nil
	})
	ts := NewThrottledSender(next, rl, "ses", RateLimit{PerSecond: 1})

	res, err := ts.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "m", res.MessageID)
}
