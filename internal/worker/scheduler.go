package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/distlock"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/delivery"
)

// DueLister finds queued campaigns that are ready to send.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// CampaignRunner runs a claimed campaign to completion.
// *delivery.Orchestrator implements it.
type CampaignRunner interface {
	Send(ctx context.Context, id string) (*delivery.Result, error)
}

// SettingsRefresher reloads the settings snapshot.
type SettingsRefresher interface {
	Refresh(ctx context.Context) (domain.Settings, error)
}

// SchedulerConfig holds cron specs and batch sizes.
type SchedulerConfig struct {
	DispatchSpec string
	RefreshSpec  string
	BatchSize    int
	LockTTL      time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.DispatchSpec == "" {
		c.DispatchSpec = "@every 30s"
	}
	if c.RefreshSpec == "" {
		c.RefreshSpec = "@every 5m"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Minute
	}
	return c
}

// Scheduler starts due campaigns on a cron schedule and keeps the settings
// snapshot fresh.
type Scheduler struct {
	cron     *cron.Cron
	due      DueLister
	runner   CampaignRunner
	settings SettingsRefresher
	lock     distlock.Factory
	cfg      SchedulerConfig
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. settings may be nil.
func NewScheduler(due DueLister, runner CampaignRunner, settings SettingsRefresher, lock distlock.Factory, cfg SchedulerConfig) *Scheduler {
	if lock == nil {
		lock = distlock.NewFactory(nil, nil, 0)
	}
	return &Scheduler{
		cron:     cron.New(),
		due:      due,
		runner:   runner,
		settings: settings,
		lock:     lock,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Start registers the cron jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.cfg.DispatchSpec, func() { s.DispatchDue(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("dispatch spec %q: %w", s.cfg.DispatchSpec, err)
	}
	if s.settings != nil {
		if _, err := s.cron.AddFunc(s.cfg.RefreshSpec, func() { s.refreshSettings(s.ctx) }); err != nil {
			s.cancel()
			return fmt.Errorf("refresh spec %q: %w", s.cfg.RefreshSpec, err)
		}
	}
	s.cron.Start()
	s.running = true

	logger.Info("scheduler started", "dispatch", s.cfg.DispatchSpec, "refresh", s.cfg.RefreshSpec)
	return nil
}

// Stop stops the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

// DispatchDue starts every due campaign whose lock it can take and returns
// how many runs it started. Runs proceed in the background; Wait blocks
// until they finish.
func (s *Scheduler) DispatchDue(ctx context.Context) int {
	due, err := s.due.ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		logger.Error("list due campaigns", "err", err)
		return 0
	}

	started := 0
	for _, c := range due {
		lock := s.lock("campaign:" + c.ID)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			logger.Warn("campaign lock unavailable", "campaign_id", c.ID, "err", err)
			continue
		}
		if !ok {
			logger.Debug("campaign locked by another replica", "campaign_id", c.ID)
			continue
		}

		started++
		s.wg.Add(1)
		go func(id string, lock distlock.DistLock) {
			defer s.wg.Done()
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("release campaign lock", "campaign_id", id, "err", err)
				}
			}()
			s.run(ctx, id)
		}(c.ID, lock)
	}
	return started
}

// Wait blocks until all started runs return.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) run(ctx context.Context, id string) {
	res, err := s.runner.Send(ctx, id)
	switch {
	case errors.Is(err, campaign.ErrConflict):
		logger.Debug("campaign already claimed", "campaign_id", id)
	case err != nil:
		logger.Error("scheduled run failed", "campaign_id", id, "err", err)
	case res != nil:
		logger.Info("scheduled run finished", "campaign_id", id,
			"success", res.Success, "sent", res.Stats.Sent, "failed", res.Stats.Failed)
	}
}

func (s *Scheduler) refreshSettings(ctx context.Context) {
	if _, err := s.settings.Refresh(ctx); err != nil {
		logger.Warn("settings refresh failed, keeping previous snapshot", "err", err)
	}
}
