// Package app wires configuration into the running services. Both the API
// server and the scheduler worker build the same graph so a campaign sent
// from either process follows the same path.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-dispatch/internal/config"
	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/mailing"
	"github.com/ignite/audience-dispatch/internal/pkg/httpretry"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/repository/memory"
	"github.com/ignite/audience-dispatch/internal/repository/postgres"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/delivery"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
	"github.com/ignite/audience-dispatch/internal/service/sending"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
	"github.com/ignite/audience-dispatch/internal/settings"
	"github.com/ignite/audience-dispatch/internal/storage"
	"github.com/ignite/audience-dispatch/internal/worker"
)

// contactStore is what both the resolver and the recipient builder need
// from the contact table.
type contactStore interface {
	segmentation.ContactQuerier
	campaign.ContactReader
}

type repos struct {
	campaigns    campaign.Repository
	recipients   campaign.RecipientRepository
	contacts     contactStore
	audiences    segmentation.AudienceRepository
	events       ledger.Repository
	suppressions suppression.Repository
	settings     settings.Repository
}

// App holds the wired services and the connections they share.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Redis        *redis.Client
	Settings     *settings.Store
	Audiences    *segmentation.Resolver
	Suppressions *suppression.Service
	Ledger       *ledger.Ledger
	Campaigns    *campaign.Service
	Recipients   *campaign.RecipientBuilder
	Orchestrator *delivery.Orchestrator

	// DueCampaigns lists queued campaigns for the scheduler.
	DueCampaigns campaign.Repository

	closers []func()
}

// ConfigureLogging applies the log section.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// New connects to the configured backends and builds the service graph.
// Optional backends that fail to connect are logged and left out; the
// database and the settings load are required.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	r, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.URL != "" {
		client, err := worker.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, continuing without throttle and redis locks", "err", err)
		} else {
			a.Redis = client
			a.closers = append(a.closers, func() { client.Close() })
		}
	}

	a.Settings = settings.NewStore(r.settings)
	if err := a.Settings.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.New(r.events, a.sinks(ctx)...)
	a.Audiences = segmentation.NewResolver(r.audiences, r.contacts)
	a.Suppressions = suppression.NewService(r.suppressions)

	renderer := mailing.NewRenderer(nil, a.Settings)
	a.Campaigns = campaign.NewService(r.campaigns, r.recipients, a.Ledger, renderer, a.Audiences)
	a.Recipients = campaign.NewRecipientBuilder(a.Audiences, r.contacts, r.recipients, a.Suppressions)
	a.DueCampaigns = r.campaigns

	sender, err := a.sender(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Orchestrator = delivery.NewOrchestrator(a.Campaigns, a.Recipients, r.recipients, renderer, sender, delivery.Config{
		Workers:          cfg.Delivery.Workers,
		MaxAttempts:      cfg.Delivery.MaxAttempts,
		RetryBaseDelay:   cfg.Delivery.RetryBase(),
		RetryMaxDelay:    cfg.Delivery.RetryMax(),
		FailWhenNoneSent: cfg.Delivery.FailWhenNoneSent,
	})
	if !cfg.Delivery.KeepBounces {
		a.Orchestrator.SetBouncer(a.Suppressions)
	}

	return a, nil
}

// Close flushes pending ledger publications and releases connections in
// reverse order of acquisition.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Flush()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (*repos, error) {
	cfg := a.Config.Database
	if cfg.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on exit")
		m := memory.New()
		return &repos{
			campaigns:    m.Campaigns(),
			recipients:   m.Recipients(),
			contacts:     m.Contacts(),
			audiences:    m.Audiences(),
			events:       m.Events(),
			suppressions: m.Suppressions(),
			settings:     m.Settings(),
		}, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	a.closers = append(a.closers, func() { db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.DB = db
	logger.Info("connected to database")

	return &repos{
		campaigns:    postgres.NewCampaignRepo(db),
		recipients:   postgres.NewRecipientRepo(db),
		contacts:     postgres.NewContactRepo(db),
		audiences:    postgres.NewAudienceRepo(db),
		events:       postgres.NewEventRepo(db),
		suppressions: postgres.NewSuppressionRepo(db),
		settings:     postgres.NewSettingsRepo(db),
	}, nil
}

func (a *App) sinks(ctx context.Context) []ledger.Sink {
	cfg := a.Config
	var sinks []ledger.Sink

	if cfg.Ledger.AMQPURL != "" {
		s, err := ledger.NewAMQPSink(cfg.Ledger.AMQPURL, cfg.Ledger.Exchange)
		if err != nil {
			logger.Warn("amqp sink disabled", "err", err)
		} else {
			sinks = append(sinks, s)
			a.closers = append(a.closers, s.Close)
		}
	}

	if cfg.Ledger.Webhook {
		client := httpretry.NewRetryClient(nil, cfg.Ledger.WebhookRetries)
		sinks = append(sinks, ledger.NewWebhookSink(a.Settings, client))
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewAWSStorage(ctx, storage.AWSConfig{
			Region:  cfg.Storage.Region,
			Profile: cfg.Storage.GetAWSProfile(),
			Table:   cfg.Storage.Table,
			Bucket:  cfg.Storage.Bucket,
			TTL:     cfg.Storage.TTL(),
		})
		if err != nil {
			logger.Warn("event archive disabled", "err", err)
		} else {
			sinks = append(sinks, storage.NewArchiveSink(store))
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("ledger sinks configured", "sinks", names)
	return sinks
}

func (a *App) sender(ctx context.Context) (sending.Sender, error) {
	cfg := a.Config
	if cfg.Delivery.DryRun {
		logger.Warn("delivery dry run: messages are logged, not sent")
		return sending.SenderFunc(dryRunSend), nil
	}

	var sender sending.Sender
	ses, err := worker.NewSESSender(ctx, worker.SESConfig{
		Region:           cfg.SES.Region,
		AccessKey:        cfg.SES.AccessKey,
		SecretKey:        cfg.SES.SecretKey,
		ConfigurationSet: cfg.SES.ConfigurationSet,
	})
	if err != nil {
		return nil, fmt.Errorf("ses sender: %w", err)
	}
	sender = ses

	if cfg.Throttle.Enabled {
		if a.Redis == nil {
			logger.Warn("throttle enabled but redis is unavailable, sending unthrottled")
			return sender, nil
		}
		limits := worker.RateLimit{
			PerSecond:       cfg.Throttle.PerSecond,
			PerMinute:       cfg.Throttle.PerMinute,
			Daily:           cfg.Throttle.Daily,
			DomainPerMinute: cfg.Throttle.DomainPerMinute,
		}
		if limits == (worker.RateLimit{}) {
			limits = worker.DefaultSESLimit
		}
		sender = worker.NewThrottledSender(sender, worker.NewRateLimiter(a.Redis), "ses", limits)
	}
	return sender, nil
}

func dryRunSend(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	logger.Info("dry run send",
		"campaign_id", msg.CampaignID, "contact_id", msg.ContactID,
		"email", msg.Email, "subject", msg.Subject)
	return &domain.SendResult{MessageID: "dry-run-" + msg.ID, SentAt: time.Now().UTC()}, nil
}
