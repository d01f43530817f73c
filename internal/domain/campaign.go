package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignQueued   CampaignStatus = "queued"
	CampaignSending  CampaignStatus = "sending"
	CampaignSent     CampaignStatus = "sent"
	CampaignFailed   CampaignStatus = "failed"
	CampaignCanceled CampaignStatus = "canceled"
)

// Campaign represents an email campaign with its content and target audience.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	AudienceID  *string        `json:"audience_id" db:"audience_id"`
	Subject     string         `json:"subject" db:"subject"`
	FromName    string         `json:"from_name" db:"from_name"`
	FromEmail   string         `json:"from_email" db:"from_email"`
	HTMLContent string         `json:"html_content" db:"html_content"`
	TextContent string         `json:"text_content" db:"text_content"`
	Status      CampaignStatus `json:"status" db:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at" db:"scheduled_at"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state. A sent
// campaign is terminal for first runs; only a resend may reopen it.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed || c.Status == CampaignCanceled
}

// HasContent reports whether the campaign carries any body to render.
func (c *Campaign) HasContent() bool {
	return c.HTMLContent != "" || c.TextContent != ""
}

// DeliveryStatus enumerates the lifecycle of a single recipient row.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryBounced DeliveryStatus = "bounced"
)

// IsRetryable reports whether an explicit resend may move the row back to pending.
func (s DeliveryStatus) IsRetryable() bool {
	return s == DeliveryFailed || s == DeliveryBounced
}

// CampaignRecipient is one row of a campaign's frozen recipient snapshot.
// Email and Name are joined from the contact for dispatch.
type CampaignRecipient struct {
	CampaignID string         `json:"campaign_id" db:"campaign_id"`
	ContactID  string         `json:"contact_id" db:"contact_id"`
	Email      string         `json:"email" db:"email"`
	Name       string         `json:"name" db:"name"`
	Status     DeliveryStatus `json:"status" db:"status"`
	LastError  *string        `json:"last_error,omitempty" db:"last_error"`
	Attempts   int            `json:"attempts" db:"attempts"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignEventType enumerates lifecycle ledger entries.
type CampaignEventType string

const (
	EventQueued          CampaignEventType = "queued"
	EventStarted         CampaignEventType = "started"
	EventCompleted       CampaignEventType = "completed"
	EventFailed          CampaignEventType = "failed"
	EventCanceled        CampaignEventType = "canceled"
	EventResendTriggered CampaignEventType = "resend_triggered"
	EventDuplicated      CampaignEventType = "duplicated"
)

// CampaignEvent is an append-only lifecycle record.
type CampaignEvent struct {
	ID         string            `json:"id" db:"id"`
	CampaignID string            `json:"campaign_id" db:"campaign_id"`
	Type       CampaignEventType `json:"type" db:"type"`
	Detail     string            `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
