// Package sending defines the collaborator contracts used by delivery.
//
// A Renderer turns a campaign into final content once per run. A Sender
// hands one message to a transport (SES, a throttled wrapper, a test fake)
// and reports failures as DeliveryError so the orchestrator can decide
// between retrying and bouncing.
package sending

import (
	"context"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Sender sends a single email through a transport. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// Renderer produces the final subject and bodies for a campaign. A non-nil
// error is fatal for the run.
type Renderer interface {
	Render(ctx context.Context, c *domain.Campaign) (*domain.RenderedContent, error)
}

// SuppressionChecker reports which addresses must never be mailed.
type SuppressionChecker interface {
	// FilterSuppressed returns the lowercased addresses among emails that
	// are on the suppression list, in one round trip.
	FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	return f(ctx, msg)
}
