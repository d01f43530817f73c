package campaign

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/pkg/metrics"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repositories are concurrency-safe.
type Service struct {
	repo       Repository
	recipients RecipientRepository
	events     EventRecorder
	renderer   sending.Renderer
	audiences  AudienceResolver
}

// NewService creates a campaign service.
func NewService(repo Repository, recipients RecipientRepository, events EventRecorder, renderer sending.Renderer, audiences AudienceResolver) *Service {
	return &Service{
		repo:       repo,
		recipients: recipients,
		events:     events,
		renderer:   renderer,
		audiences:  audiences,
	}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return nil, invalidInput("subject is required")
	}
	if input.FromEmail != "" {
		if _, err := mail.ParseAddress(input.FromEmail); err != nil {
			return nil, invalidInput("from_email is not a valid address")
		}
	}

	c := &domain.Campaign{
		ID:          uuid.New().String(),
		Subject:     input.Subject,
		FromName:    input.FromName,
		FromEmail:   input.FromEmail,
		HTMLContent: input.HTMLContent,
		TextContent: input.TextContent,
		Status:      domain.CampaignDraft,
	}
	if input.AudienceID != "" {
		c.AudienceID = &input.AudienceID
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Update modifies mutable fields of a draft campaign.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Subject != nil && strings.TrimSpace(*u.Subject) == "" {
		return invalidInput("subject cannot be empty")
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign (only draft/canceled).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Schedule moves a draft to queued. The content must render to a non-empty
// body and the audience must currently match at least one contact. A nil
// `at` makes the campaign due immediately.
func (s *Service) Schedule(ctx context.Context, id string, at *time.Time) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, &ConflictError{CampaignID: id, Op: "schedule", Expected: domain.CampaignDraft, Actual: c.Status}
	}
	if c.AudienceID == nil {
		return nil, ErrMissingAudience
	}

	content, err := s.renderer.Render(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingContent, err)
	}
	if content.IsEmpty() {
		return nil, ErrMissingContent
	}

	n, err := s.audiences.PreviewAudience(ctx, *c.AudienceID)
	if err != nil {
		return nil, fmt.Errorf("preview audience: %w", err)
	}
	if n == 0 {
		return nil, ErrNoRecipients
	}

	if at != nil {
		if err := s.repo.Update(ctx, id, UpdateFields{ScheduledAt: at}); err != nil {
			return nil, fmt.Errorf("set schedule: %w", err)
		}
	}
	if err := s.transition(ctx, id, domain.CampaignDraft, domain.CampaignQueued, "schedule"); err != nil {
		return nil, err
	}
	s.record(ctx, id, domain.EventQueued, map[string]any{"audience_size": n, "scheduled_at": at})

	return s.repo.Get(ctx, id)
}

// Cancel moves a queued campaign to canceled. Any other status is a conflict.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.transition(ctx, id, domain.CampaignQueued, domain.CampaignCanceled, "cancel"); err != nil {
		return err
	}
	s.record(ctx, id, domain.EventCanceled, nil)
	logger.Info("campaign canceled", "campaign_id", id)
	return nil
}

// Duplicate creates a new draft with the same content and audience. The
// subject gets a " (Copy)" suffix; recipients and events are not copied.
func (s *Service) Duplicate(ctx context.Context, id string) (*domain.Campaign, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cp := &domain.Campaign{
		ID:          uuid.New().String(),
		AudienceID:  src.AudienceID,
		Subject:     src.Subject + " (Copy)",
		FromName:    src.FromName,
		FromEmail:   src.FromEmail,
		HTMLContent: src.HTMLContent,
		TextContent: src.TextContent,
		Status:      domain.CampaignDraft,
	}
	newID, err := s.repo.Create(ctx, cp)
	if err != nil {
		return nil, fmt.Errorf("create copy: %w", err)
	}
	s.record(ctx, id, domain.EventDuplicated, map[string]string{"copy_id": newID})
	return s.repo.Get(ctx, newID)
}

// Claim takes the single sending slot of a queued campaign.
func (s *Service) Claim(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignQueued, domain.CampaignSending, "claim")
}

// ClaimResend takes the sending slot of a sent or failed campaign for a
// resend run and returns the status the campaign came from.
func (s *Service) ClaimResend(ctx context.Context, id string) (domain.CampaignStatus, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	from := domain.CampaignSent
	if c.Status == domain.CampaignFailed {
		from = domain.CampaignFailed
	}
	if err := s.transition(ctx, id, from, domain.CampaignSending, "resend"); err != nil {
		return "", err
	}
	return from, nil
}

// Release hands a claimed campaign back to the queue.
func (s *Service) Release(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignSending, domain.CampaignQueued, "release")
}

// Complete marks a run as finished.
func (s *Service) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignSending, domain.CampaignSent, "complete")
}

// Fail marks a run that could not proceed.
func (s *Service) Fail(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignSending, domain.CampaignFailed, "fail")
}

// Recipients lists a campaign's recipient rows.
func (s *Service) Recipients(ctx context.Context, id string, f RecipientFilter) ([]domain.CampaignRecipient, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.recipients.List(ctx, id, f)
}

// Events lists a campaign's lifecycle events, newest first.
func (s *Service) Events(ctx context.Context, id string, limit int) ([]domain.CampaignEvent, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.events.List(ctx, id, limit)
}

// Record appends a lifecycle event, logging instead of failing. Used by the
// delivery orchestrator so events land in the same ledger.
func (s *Service) Record(ctx context.Context, id string, typ domain.CampaignEventType, detail any) {
	s.record(ctx, id, typ, detail)
}

func (s *Service) transition(ctx context.Context, id string, from, to domain.CampaignStatus, op string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ok, err := s.repo.CompareAndSetStatus(ctx, id, from, to)
	if err != nil {
		return fmt.Errorf("%s campaign %s: %w", op, id, err)
	}
	if ok {
		return nil
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	metrics.RecordConflict(op)
	return &ConflictError{CampaignID: id, Op: op, Expected: from, Actual: current.Status}
}

func (s *Service) record(ctx context.Context, id string, typ domain.CampaignEventType, detail any) {
	if _, err := s.events.Record(ctx, id, typ, detail); err != nil {
		logger.Error("failed to record campaign event", "campaign_id", id, "event", string(typ), "err", err)
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Subject     string `json:"subject"`
	FromName    string `json:"from_name"`
	FromEmail   string `json:"from_email"`
	AudienceID  string `json:"audience_id"`
	HTMLContent string `json:"html_content"`
	TextContent string `json:"text_content"`
}
