package domain

import "time"

// EmailMessage is the fully-resolved message ready for a transport.
// By the time a message reaches this struct, all template substitution
// is complete.
type EmailMessage struct {
	ID          string            `json:"id"`
	CampaignID  string            `json:"campaign_id"`
	ContactID   string            `json:"contact_id"`
	Email       string            `json:"email"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by a transport after a successful hand-off.
type SendResult struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// RenderedContent is the output of the content renderer for one campaign.
type RenderedContent struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// IsEmpty reports whether there is no body to send.
func (r *RenderedContent) IsEmpty() bool {
	return r == nil || (r.HTML == "" && r.Text == "")
}

// Settings is the process-wide configuration singleton read at send time.
type Settings struct {
	DefaultLink   string    `json:"default_link" db:"default_link"`
	DiscountCode  string    `json:"discount_code" db:"discount_code"`
	WebhookURL    string    `json:"webhook_url" db:"webhook_url"`
	WebhookSecret string    `json:"-" db:"webhook_secret"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
