package delivery

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/pkg/metrics"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

var errNoAddress = errors.New("recipient has no email address")

// dispatch delivers rows with at most cfg.Workers concurrent sends and
// returns once every row has an outcome.
func (o *Orchestrator) dispatch(ctx context.Context, c *domain.Campaign, content *domain.RenderedContent, rows []domain.CampaignRecipient) Stats {
	if len(rows) == 0 {
		return Stats{}
	}

	var attempted, sent, failed, bounced int64
	jobs := make(chan domain.CampaignRecipient)
	workers := o.cfg.Workers
	if workers > len(rows) {
		workers = len(rows)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				atomic.AddInt64(&attempted, 1)
				switch o.deliver(ctx, c, content, r) {
				case domain.DeliverySent:
					atomic.AddInt64(&sent, 1)
				case domain.DeliveryBounced:
					atomic.AddInt64(&bounced, 1)
					atomic.AddInt64(&failed, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}
	for _, r := range rows {
		jobs <- r
	}
	close(jobs)
	wg.Wait()

	return Stats{
		Attempted: int(attempted),
		Sent:      int(sent),
		Failed:    int(failed),
		Bounced:   int(bounced),
	}
}

// deliver sends to one recipient, retrying transient failures, and records
// the outcome on that recipient's row only.
func (o *Orchestrator) deliver(ctx context.Context, c *domain.Campaign, content *domain.RenderedContent, r domain.CampaignRecipient) domain.DeliveryStatus {
	if r.Email == "" {
		return o.record(ctx, r, domain.DeliveryFailed, 0, errNoAddress)
	}

	msg := &domain.EmailMessage{
		ID:          uuid.New().String(),
		CampaignID:  c.ID,
		ContactID:   r.ContactID,
		Email:       r.Email,
		FromName:    c.FromName,
		FromEmail:   c.FromEmail,
		Subject:     content.Subject,
		HTMLContent: content.HTML,
		TextContent: content.Text,
		Headers:     map[string]string{"X-Campaign-ID": c.ID},
	}

	var lastErr error
	attempts := 0
	for attempts < o.cfg.MaxAttempts {
		attempts++
		_, err := o.sender.Send(ctx, msg)
		if err == nil {
			metrics.RecordAttempt("ok")
			return o.record(ctx, r, domain.DeliverySent, attempts, nil)
		}
		lastErr = err

		if sending.IsPermanent(err) {
			metrics.RecordAttempt("permanent")
			o.bounce(ctx, c.ID, r.Email, err)
			return o.record(ctx, r, domain.DeliveryBounced, attempts, err)
		}
		metrics.RecordAttempt("transient")
		if !sending.IsTransient(err) || attempts >= o.cfg.MaxAttempts {
			break
		}

		delay := o.backoff(attempts)
		logger.Debug("transient send failure, retrying",
			"campaign_id", c.ID, "contact_id", r.ContactID, "attempt", attempts, "delay", delay.String(), "err", err)
		if !sleep(ctx, delay) {
			break
		}
	}
	return o.record(ctx, r, domain.DeliveryFailed, attempts, lastErr)
}

func (o *Orchestrator) record(ctx context.Context, r domain.CampaignRecipient, status domain.DeliveryStatus, attempts int, cause error) domain.DeliveryStatus {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	ok, err := o.recipients.MarkOutcome(ctx, r.CampaignID, r.ContactID, status, attempts, msg)
	switch {
	case err != nil:
		logger.Error("failed to record recipient outcome",
			"campaign_id", r.CampaignID, "contact_id", r.ContactID, "status", string(status), "err", err)
	case !ok:
		logger.Warn("recipient row was no longer pending",
			"campaign_id", r.CampaignID, "contact_id", r.ContactID, "status", string(status))
	}
	metrics.RecordOutcome(string(status))
	return status
}

func (o *Orchestrator) bounce(ctx context.Context, campaignID, email string, cause error) {
	if o.bouncer == nil {
		return
	}
	if err := o.bouncer.SuppressBounce(ctx, email, campaignID, cause.Error()); err != nil {
		logger.Warn("failed to suppress bounced address", "campaign_id", campaignID, "email", email, "err", err)
	}
}

// backoff returns a full-jitter exponential delay for the given attempt:
// random(0, min(max, base * 2^(attempt-1))), floored at base/10.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	exp := float64(o.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(o.cfg.RetryMaxDelay) {
		exp = float64(o.cfg.RetryMaxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if floor := o.cfg.RetryBaseDelay / 10; d < floor {
		d = floor
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
