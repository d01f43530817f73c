package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

// ErrDailyLimit is returned when the transport's daily quota is used up.
var ErrDailyLimit = errors.New("daily send limit exceeded")

// RateLimit defines the windows enforced for one transport. Zero disables
// a window.
type RateLimit struct {
	PerSecond       int
	PerMinute       int
	Daily           int
	DomainPerMinute int
}

// DefaultSESLimit matches a production SES account.
var DefaultSESLimit = RateLimit{PerSecond: 500, PerMinute: 30000, Daily: 25000000, DomainPerMinute: 1000}

// RateLimiter provides atomic rate limiting using Redis Lua scripts.
// Checking and incrementing happen in one script so concurrent workers
// cannot overshoot a window.
type RateLimiter struct {
	redis *redis.Client
	now   func() time.Time

	multiLimitScript  *redis.Script
	domainLimitScript *redis.Script
}

// Checks all three windows and only increments if every one passes.
const multiLimitLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local dailyKey = KEYS[3]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local dailyLimit = tonumber(ARGV[4])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if secondLimit > 0 and secCurrent + increment > secondLimit then
    return {0, 1, secCurrent}
end
if minuteLimit > 0 and minCurrent + increment > minuteLimit then
    return {0, 2, minCurrent}
end
if dailyLimit > 0 and dayCurrent + increment > dailyLimit then
    return {0, 3, dayCurrent}
end

if redis.call("INCRBY", secondKey, increment) == increment then
    redis.call("EXPIRE", secondKey, 2)
end
if redis.call("INCRBY", minuteKey, increment) == increment then
    redis.call("EXPIRE", minuteKey, 120)
end
local newDay = redis.call("INCRBY", dailyKey, increment)
if newDay == increment then
    redis.call("EXPIRE", dailyKey, 90000)
end

return {1, 0, newDay}
`

const domainLimitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, 120)
end
return {1, newVal}
`

// NewRateLimiter creates a rate limiter with pre-compiled Lua scripts.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:             client,
		now:               time.Now,
		multiLimitScript:  redis.NewScript(multiLimitLuaScript),
		domainLimitScript: redis.NewScript(domainLimitLuaScript),
	}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// CheckAndIncrement atomically checks and increments the counters for name.
// When denied, wait is how long until the blocking window rolls over.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, name string, limits RateLimit, n int) (allowed bool, wait time.Duration, err error) {
	now := r.now()
	secondKey := fmt.Sprintf("ratelimit:%s:sec:%d", name, now.Unix())
	minuteKey := fmt.Sprintf("ratelimit:%s:min:%d", name, now.Unix()/60)
	dailyKey := fmt.Sprintf("ratelimit:%s:day:%s", name, now.UTC().Format("2006-01-02"))

	result, err := r.multiLimitScript.Run(ctx, r.redis,
		[]string{secondKey, minuteKey, dailyKey},
		n, limits.PerSecond, limits.PerMinute, limits.Daily,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	switch result[1].(int64) {
	case 1:
		return false, time.Second, nil
	case 2:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	default:
		return false, 0, fmt.Errorf("%s: %w", name, ErrDailyLimit)
	}
}

// CheckDomainLimit atomically checks the per-minute limit for a recipient
// domain. Redis errors allow the send.
func (r *RateLimiter) CheckDomainLimit(ctx context.Context, domainName string, limit int) (allowed bool, wait time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	now := r.now()
	key := fmt.Sprintf("ratelimit:domain:%s:%d", domainName, now.Unix()/60)

	result, err := r.domainLimitScript.Run(ctx, r.redis, []string{key}, 1, limit).Slice()
	if err != nil {
		logger.Warn("domain limit check failed", "domain", domainName, "err", err)
		return true, 0
	}
	if result[0].(int64) == 0 {
		return false, time.Duration(60-now.Second()) * time.Second
	}
	return true, 0
}

// Usage returns current counters for name.
func (r *RateLimiter) Usage(ctx context.Context, name string) (map[string]int64, error) {
	now := r.now()
	pipe := r.redis.Pipeline()
	secCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:sec:%d", name, now.Unix()))
	minCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:min:%d", name, now.Unix()/60))
	dayCmd := pipe.Get(ctx, fmt.Sprintf("ratelimit:%s:day:%s", name, now.UTC().Format("2006-01-02")))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	sec, _ := secCmd.Int64()
	min, _ := minCmd.Int64()
	day, _ := dayCmd.Int64()
	return map[string]int64{"second": sec, "minute": min, "daily": day}, nil
}

// ThrottledSender waits for rate limiter capacity before each send.
type ThrottledSender struct {
	next    sending.Sender
	limiter *RateLimiter
	name    string
	limits  RateLimit
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ sending.Sender = (*ThrottledSender)(nil)

// NewThrottledSender wraps next with the limits registered under name.
func NewThrottledSender(next sending.Sender, limiter *RateLimiter, name string, limits RateLimit) *ThrottledSender {
	return &ThrottledSender{next: next, limiter: limiter, name: name, limits: limits, sleep: sleepCtx}
}

// Send blocks until every window has room. A used-up daily quota is a
// transient failure so the recipient can be picked up by a later resend.
func (t *ThrottledSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	for {
		allowed, wait, err := t.limiter.CheckAndIncrement(ctx, t.name, t.limits, 1)
		if errors.Is(err, ErrDailyLimit) {
			return nil, sending.NewTransient("DailyLimit", err)
		}
		if err != nil {
			logger.Warn("rate limiter unavailable, sending unthrottled", "transport", t.name, "err", err)
			break
		}
		if allowed {
			break
		}
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if at := strings.LastIndex(msg.Email, "@"); at >= 0 {
		domainName := strings.ToLower(msg.Email[at+1:])
		for {
			allowed, wait := t.limiter.CheckDomainLimit(ctx, domainName, t.limits.DomainPerMinute)
			if allowed {
				break
			}
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return t.next.Send(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
