package domain

import "time"

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual      SuppressionReason = "manual"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceDelivery SuppressionSource = "delivery"
	SourceManual   SuppressionSource = "manual"
	SourceImport   SuppressionSource = "import"
)

// Suppression represents a single entry in the global suppression list.
// Suppressed addresses are excluded from every new recipient snapshot.
type Suppression struct {
	ID         string            `json:"id" db:"id"`
	Email      string            `json:"email" db:"email"`
	Reason     SuppressionReason `json:"reason" db:"reason"`
	Source     SuppressionSource `json:"source" db:"source"`
	Detail     string            `json:"detail,omitempty" db:"detail"`
	CampaignID string            `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
