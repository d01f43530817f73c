package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// RunReport is the S3 document written when a run completes or fails.
type RunReport struct {
	CampaignID string          `json:"campaign_id"`
	EventID    string          `json:"event_id"`
	Outcome    string          `json:"outcome"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	FinishedAt string          `json:"finished_at"`
}

// ReportKey is where the report for event e lives.
func ReportKey(e domain.CampaignEvent) string {
	return fmt.Sprintf("reports/%s/%s/%s.json",
		e.CreatedAt.UTC().Format("2006/01/02"), e.CampaignID, e.ID)
}

// ArchiveSink mirrors ledger events to DynamoDB and writes a run report to
// S3 for every completed or failed event. It implements ledger.Sink.
type ArchiveSink struct {
	store *AWSStorage
}

// NewArchiveSink creates a sink backed by store.
func NewArchiveSink(store *AWSStorage) *ArchiveSink {
	return &ArchiveSink{store: store}
}

func (a *ArchiveSink) Name() string { return "aws-archive" }

func (a *ArchiveSink) Publish(ctx context.Context, e domain.CampaignEvent) error {
	if err := a.store.SaveEvent(ctx, e); err != nil {
		return err
	}
	if e.Type != domain.EventCompleted && e.Type != domain.EventFailed {
		return nil
	}

	report := RunReport{
		CampaignID: e.CampaignID,
		EventID:    e.ID,
		Outcome:    string(e.Type),
		FinishedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if e.Detail != "" && json.Valid([]byte(e.Detail)) {
		report.Detail = json.RawMessage(e.Detail)
	}
	return a.store.SaveToS3(ctx, ReportKey(e), report)
}
