package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Repository stores campaign events.
type Repository interface {
	// Append inserts a new event. Events are never updated or deleted.
	Append(ctx context.Context, e *domain.CampaignEvent) error

	// List returns a campaign's events ordered by created_at DESC.
	List(ctx context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error)
}

// Sink receives a copy of every recorded event.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e domain.CampaignEvent) error
}

// Ledger appends events and fans them out to sinks.
type Ledger struct {
	repo  Repository
	sinks []Sink
	wg    sync.WaitGroup
	now   func() time.Time
}

// New creates a ledger over repo. Sinks are optional.
func New(repo Repository, sinks ...Sink) *Ledger {
	return &Ledger{repo: repo, sinks: sinks, now: time.Now}
}

// Record appends an event. detail may be nil, a string, or any value that
// marshals to JSON.
func (l *Ledger) Record(ctx context.Context, campaignID string, typ domain.CampaignEventType, detail any) (*domain.CampaignEvent, error) {
	text, err := detailText(detail)
	if err != nil {
		return nil, fmt.Errorf("encode %s detail: %w", typ, err)
	}

	e := &domain.CampaignEvent{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Type:       typ,
		Detail:     text,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append %s event: %w", typ, err)
	}

	l.fanOut(context.WithoutCancel(ctx), *e)
	return e, nil
}

// List returns the newest events first.
func (l *Ledger) List(ctx context.Context, campaignID string, limit int) ([]domain.CampaignEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return l.repo.List(ctx, campaignID, limit)
}

// Flush blocks until every in-flight sink publication has finished.
func (l *Ledger) Flush() {
	l.wg.Wait()
}

func (l *Ledger) fanOut(ctx context.Context, e domain.CampaignEvent) {
	for _, s := range l.sinks {
		l.wg.Add(1)
		go func(s Sink) {
			defer l.wg.Done()
			sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := s.Publish(sctx, e); err != nil {
				logger.Warn("ledger sink publish failed",
					"sink", s.Name(), "campaign_id", e.CampaignID, "event", string(e.Type), "err", err)
			}
		}(s)
	}
}

func detailText(detail any) (string, error) {
	switch d := detail.(type) {
	case nil:
		return "", nil
	case string:
		return d, nil
	case []byte:
		return string(d), nil
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
