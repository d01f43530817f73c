package campaign

import (
	"context"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// ListDue returns queued campaigns whose scheduled_at is unset or not
	// after now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a draft campaign. Only non-nil fields are applied.
	// Returns ErrNotEditable if the campaign is not a draft.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign. Only draft/canceled campaigns can be deleted.
	Delete(ctx context.Context, id string) error

	// CompareAndSetStatus moves the campaign from `from` to `to` in a single
	// atomic step and reports whether it did. started_at is stamped on the
	// first move to sending; completed_at on every move to sent, failed or
	// canceled.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.CampaignStatus) (bool, error)
}

// RecipientRepository stores campaign recipient snapshots.
type RecipientRepository interface {
	// Insert adds pending rows for contactIDs. Rows that already exist are
	// left untouched. Returns the number of rows inserted.
	Insert(ctx context.Context, campaignID string, contactIDs []string) (int, error)

	// List returns recipient rows joined with contact email and name.
	List(ctx context.Context, campaignID string, filter RecipientFilter) ([]domain.CampaignRecipient, error)

	// Count returns the size of the snapshot.
	Count(ctx context.Context, campaignID string) (int, error)

	// MarkOutcome finalizes a pending row. It reports false, without
	// writing, when the row is not pending.
	MarkOutcome(ctx context.Context, campaignID, contactID string, status domain.DeliveryStatus, attempts int, lastErr string) (bool, error)

	// ResetFailed moves failed and bounced rows back to pending and returns
	// exactly the rows it moved.
	ResetFailed(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)
}

// ContactReader loads contacts by id.
type ContactReader interface {
	// GetMany returns the contacts that exist among ids, in no particular order.
	GetMany(ctx context.Context, ids []string) ([]domain.Contact, error)
}

// AudienceResolver turns an audience into distinct contact ids.
type AudienceResolver interface {
	Resolve(ctx context.Context, audienceID string) ([]string, error)
	PreviewAudience(ctx context.Context, audienceID string) (int, error)
}

// EventRecorder appends and lists lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, campaignID string, typ domain.CampaignEventType, detail any) (*domain.CampaignEvent, error)
	List(ctx context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// RecipientFilter controls which recipient rows List returns.
type RecipientFilter struct {
	Status domain.DeliveryStatus
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Subject     *string
	FromName    *string
	FromEmail   *string
	AudienceID  *string
	HTMLContent *string
	TextContent *string
	ScheduledAt *time.Time
}
