package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/pkg/metrics"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

// Lifecycle is the campaign state machine as seen by the orchestrator.
// *campaign.Service implements it.
type Lifecycle interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Claim(ctx context.Context, id string) error
	ClaimResend(ctx context.Context, id string) (domain.CampaignStatus, error)
	Release(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string) error
	Record(ctx context.Context, id string, typ domain.CampaignEventType, detail any)
}

// SnapshotBuilder returns a campaign's recipient rows, creating them if needed.
// *campaign.RecipientBuilder implements it.
type SnapshotBuilder interface {
	Build(ctx context.Context, c *domain.Campaign) ([]domain.CampaignRecipient, error)
}

// Bouncer records addresses that failed permanently.
type Bouncer interface {
	SuppressBounce(ctx context.Context, email, campaignID, detail string) error
}

// Config tunes a run.
type Config struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// FailWhenNoneSent moves a run that delivered nothing to failed instead
	// of sent.
	FailWhenNoneSent bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	return c
}

// Stats aggregates per-recipient outcomes of one run. Failed counts every
// recipient that was not sent; Bounced is the permanent subset of Failed.
type Stats struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Bounced   int `json:"bounced"`
}

// Result is returned by Send and Resend.
type Result struct {
	CampaignID string `json:"campaign_id"`
	Success    bool   `json:"success"`
	Stats      Stats  `json:"stats"`
	Error      string `json:"error,omitempty"`
}

// Orchestrator runs sends and resends.
type Orchestrator struct {
	campaigns  Lifecycle
	builder    SnapshotBuilder
	recipients campaign.RecipientRepository
	renderer   sending.Renderer
	sender     sending.Sender
	bouncer    Bouncer
	cfg        Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(campaigns Lifecycle, builder SnapshotBuilder, recipients campaign.RecipientRepository, renderer sending.Renderer, sender sending.Sender, cfg Config) *Orchestrator {
	return &Orchestrator{
		campaigns:  campaigns,
		builder:    builder,
		recipients: recipients,
		renderer:   renderer,
		sender:     sender,
		cfg:        cfg.withDefaults(),
	}
}

// SetBouncer enables suppression of permanently failing addresses.
func (o *Orchestrator) SetBouncer(b Bouncer) {
	o.bouncer = b
}

// Send runs a queued campaign. A lost claim returns a *campaign.ConflictError
// and dispatches nothing. The run is detached from ctx cancellation so
// in-flight sends always finish and get recorded.
func (o *Orchestrator) Send(ctx context.Context, id string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	res := &Result{CampaignID: id}

	if err := o.campaigns.Claim(ctx, id); err != nil {
		res.Error = err.Error()
		return res, err
	}
	logger.Info("campaign claimed", "campaign_id", id, "workers", o.cfg.Workers)

	c, err := o.campaigns.Get(ctx, id)
	if err != nil {
		return o.fail(ctx, res, "load", err)
	}

	content, err := o.render(ctx, c)
	if err != nil {
		return o.fail(ctx, res, "render", err)
	}

	rows, err := o.builder.Build(ctx, c)
	if errors.Is(err, campaign.ErrNoRecipients) {
		if rerr := o.campaigns.Release(ctx, id); rerr != nil {
			logger.Error("failed to release campaign", "campaign_id", id, "err", rerr)
		}
		res.Error = err.Error()
		return res, err
	}
	if err != nil {
		return o.fail(ctx, res, "recipients", err)
	}
	pending := filterPending(rows)

	o.campaigns.Record(ctx, id, domain.EventStarted, map[string]int{
		"recipients": len(rows),
		"pending":    len(pending),
	})

	res.Stats = o.dispatch(ctx, c, content, pending)
	metrics.RecordRun("send", time.Since(start))
	return o.finish(ctx, res, false, o.cfg.FailWhenNoneSent)
}

// Resend re-dispatches the failed and bounced rows of a sent campaign, or of
// a failed one whose run delivered nothing. Only those rows move back to
// pending; Stats cover only them. A failed campaign stays failed until a
// resend delivers at least one message.
func (o *Orchestrator) Resend(ctx context.Context, id string) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	res := &Result{CampaignID: id}

	from, err := o.campaigns.ClaimResend(ctx, id)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	c, err := o.campaigns.Get(ctx, id)
	if err != nil {
		return o.reopen(ctx, res, from, "load", err)
	}
	content, err := o.render(ctx, c)
	if err != nil {
		return o.reopen(ctx, res, from, "render", err)
	}

	rows, err := o.recipients.ResetFailed(ctx, id)
	if err != nil {
		return o.reopen(ctx, res, from, "reset", err)
	}
	if from == domain.CampaignFailed && len(rows) == 0 {
		return o.reopen(ctx, res, from, "reset", campaign.ErrNoRecipients)
	}
	o.campaigns.Record(ctx, id, domain.EventResendTriggered, map[string]int{"recipients": len(rows)})
	logger.Info("resend triggered", "campaign_id", id, "from", string(from), "recipients", len(rows))

	res.Stats = o.dispatch(ctx, c, content, rows)
	metrics.RecordRun("resend", time.Since(start))
	return o.finish(ctx, res, true, from == domain.CampaignFailed)
}

func (o *Orchestrator) render(ctx context.Context, c *domain.Campaign) (*domain.RenderedContent, error) {
	content, err := o.renderer.Render(ctx, c)
	if err != nil {
		return nil, err
	}
	if content.IsEmpty() {
		return nil, campaign.ErrMissingContent
	}
	return content, nil
}

// finish closes a run that reached dispatch. With failIfNoneSent, a run
// that attempted recipients but delivered none ends in failed.
func (o *Orchestrator) finish(ctx context.Context, res *Result, resend, failIfNoneSent bool) (*Result, error) {
	id := res.CampaignID
	detail := map[string]any{"stats": res.Stats, "resend": resend}

	if failIfNoneSent && res.Stats.Attempted > 0 && res.Stats.Sent == 0 {
		if err := o.campaigns.Fail(ctx, id); err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Error = "no recipient was delivered"
		o.campaigns.Record(ctx, id, domain.EventFailed, detail)
		return res, nil
	}

	if err := o.campaigns.Complete(ctx, id); err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.Success = true
	o.campaigns.Record(ctx, id, domain.EventCompleted, detail)
	logger.Info("campaign run completed",
		"campaign_id", id, "resend", resend,
		"attempted", res.Stats.Attempted, "sent", res.Stats.Sent,
		"failed", res.Stats.Failed, "bounced", res.Stats.Bounced)
	return res, nil
}

// fail moves a claimed first run to failed before any recipient is touched.
func (o *Orchestrator) fail(ctx context.Context, res *Result, stage string, cause error) (*Result, error) {
	id := res.CampaignID
	logger.Error("campaign run failed", "campaign_id", id, "stage", stage, "err", cause)
	if err := o.campaigns.Fail(ctx, id); err != nil {
		logger.Error("failed to mark campaign failed", "campaign_id", id, "err", err)
	}
	o.campaigns.Record(ctx, id, domain.EventFailed, map[string]string{"stage": stage, "error": cause.Error()})
	res.Error = cause.Error()
	return res, fmt.Errorf("%s: %w", stage, cause)
}

// reopen returns a resend that could not start to the status it was
// claimed from; its earlier deliveries stand.
func (o *Orchestrator) reopen(ctx context.Context, res *Result, from domain.CampaignStatus, stage string, cause error) (*Result, error) {
	id := res.CampaignID
	logger.Error("resend aborted", "campaign_id", id, "stage", stage, "err", cause)
	back := o.campaigns.Complete
	if from == domain.CampaignFailed {
		back = o.campaigns.Fail
	}
	if err := back(ctx, id); err != nil {
		logger.Error("failed to reopen campaign", "campaign_id", id, "err", err)
	}
	o.campaigns.Record(ctx, id, domain.EventFailed, map[string]any{"stage": stage, "error": cause.Error(), "resend": true})
	res.Error = cause.Error()
	return res, fmt.Errorf("resend %s: %w", stage, cause)
}

func filterPending(rows []domain.CampaignRecipient) []domain.CampaignRecipient {
	out := make([]domain.CampaignRecipient, 0, len(rows))
	for _, r := range rows {
		if r.Status == domain.DeliveryPending {
			out = append(out, r)
		}
	}
	return out
}
