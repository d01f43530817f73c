package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("campaign status conflict")
	ErrInvalidInput      = errors.New("invalid campaign input")
	ErrMissingAudience   = errors.New("campaign has no audience")
	ErrMissingContent    = errors.New("campaign has no renderable content")
	ErrNoRecipients      = errors.New("campaign has no eligible recipients")
	ErrSnapshotFrozen    = errors.New("recipient snapshot is frozen")
	ErrNotEditable       = errors.New("only draft campaigns can be edited")
)

// ConflictError reports a lost compare-and-set: the campaign was not in the
// status the operation required.
type ConflictError struct {
	CampaignID string
	Op         string
	Expected   domain.CampaignStatus
	Actual     domain.CampaignStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s campaign %s: status is %s, want %s", e.Op, e.CampaignID, e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
