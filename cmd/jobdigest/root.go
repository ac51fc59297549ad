package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/adapter"
	"github.com/amishk599/jobdigest/internal/ai"
	"github.com/amishk599/jobdigest/internal/config"
	"github.com/amishk599/jobdigest/internal/digest"
	"github.com/amishk599/jobdigest/internal/lock"
	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/notifier"
	"github.com/amishk599/jobdigest/internal/orchestrator"
	"github.com/amishk599/jobdigest/internal/ratelimit"
	"github.com/amishk599/jobdigest/internal/registry"
	"github.com/amishk599/jobdigest/internal/secrets"
	"github.com/amishk599/jobdigest/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobdigest",
	Short: "Deduplicated job-posting digests",
	Long:  "jobdigest fetches postings from configured job sources, filters them per user, and mails each user a digest of what is new and still open.",
	// Default to `start` so that `jobdigest` with no args runs the daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBDIGEST_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBDIGEST_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBDIGEST_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// app holds the long-lived collaborators every command shares.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	store      store.Store
	accounts   model.AccountStore
	adapters   *adapter.Registry
	sources    *registry.Registry
	closers    []func() error
}

// newApp loads config and opens the store. A dry run wraps the store so no
// command can write through it.
func newApp(ctx context.Context, logger *slog.Logger, dryRun bool) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Fetch.Timeout + 5*time.Second}
	limiter := ratelimit.NewProviderLimiter(cfg.Fetch.RateLimit.RequestsPerSecond, cfg.Fetch.RateLimit.Burst, cfg.Fetch.RateLimit.PerProvider)
	adapters := adapter.NewRegistry(httpClient, logger,
		adapter.WithRateLimiter(limiter),
		adapter.WithRetry(cfg.Fetch.Retries, cfg.Fetch.RetryBaseDelay),
	)
	if err := cfg.CheckProviders(adapters.Supports); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{
		cfg:        cfg,
		logger:     logger,
		httpClient: httpClient,
		store:      st,
		adapters:   adapters,
		closers:    []func() error{st.Close},
	}
	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be sent or recorded")
		a.store = store.NewReadOnlyStore(st)
	}

	if len(cfg.Users) > 0 {
		a.accounts = config.NewStaticAccounts(cfg.Users)
	} else {
		a.accounts = a.store
	}
	a.sources = registry.New(cfg.Sources, a.store, adapters, logger)

	logger.Debug("config loaded",
		"sources", len(cfg.Sources),
		"providers", adapters.Providers(),
		"store", cfg.Store.Driver,
		"mail", cfg.Mail.Driver,
		"ai", cfg.AI.Enabled,
	)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) validateOptions(force bool) registry.ValidateOptions {
	v := a.cfg.Validation
	return registry.ValidateOptions{
		Force:        force,
		MaxAge:       v.MaxAge,
		ProbeTimeout: v.ProbeTimeout,
		MinPostings:  v.MinPostings,
		Concurrency:  v.Concurrency,
	}
}

func (a *app) setupMailer() (model.Mailer, error) {
	m := a.cfg.Mail
	switch m.Driver {
	case "slack":
		a.logger.Info("using slack mailer")
		return notifier.NewSlackMailer(m.WebhookURL, &http.Client{Timeout: m.Timeout}, a.logger), nil
	case "smtp":
		password, err := secrets.Resolve(m.SMTP.Password, m.SMTP.KeyringAccount)
		if err != nil && m.SMTP.Username != "" {
			return nil, fmt.Errorf("smtp password: %w", err)
		}
		a.logger.Info("using smtp mailer", "host", m.SMTP.Host, "port", m.SMTP.Port)
		return notifier.NewSMTPMailer(notifier.SMTPConfig{
			Host:     m.SMTP.Host,
			Port:     m.SMTP.Port,
			Username: m.SMTP.Username,
			Password: password,
			From:     m.SMTP.From,
			TLS:      m.SMTP.TLS,
		}, a.logger), nil
	default:
		return notifier.NewLogMailer(a.logger), nil
	}
}

// setupSelector returns the LLM relevance filter, or pass-through when AI is
// disabled.
func (a *app) setupSelector(ctx context.Context) (ai.Selector, error) {
	c := a.cfg.AI
	if !c.Enabled {
		a.logger.Info("relevance selection disabled, passing ranked candidates through")
		return ai.NewPassThrough(), nil
	}
	apiKey, err := secrets.Resolve(c.APIKey, c.KeyringAccount)
	if err != nil {
		return nil, fmt.Errorf("ai api key: %w", err)
	}
	provider, err := ai.NewProvider(ctx, ai.ProviderConfig{
		Name:    c.Provider,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		APIKey:  apiKey,
	}, &http.Client{Timeout: c.Timeout})
	if err != nil {
		return nil, err
	}
	a.logger.Info("relevance selection enabled", "provider", c.Provider)
	return ai.NewRelevanceFilter(provider, ai.RelevanceTemplate, c.Timeout, c.ShrinkRetries, a.logger), nil
}

func (a *app) setupLocker(ctx context.Context) (model.RunLocker, error) {
	if a.cfg.Lock.Driver != "redis" {
		return lock.NewMemoryLocker(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, a.cfg.Lock.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return lock.NewRedisLocker(rdb, a.cfg.Lock.TTL, a.logger), nil
}

func (a *app) assembler(selector ai.Selector) *digest.Assembler {
	d := a.cfg.Digest
	return digest.NewAssembler(selector, digest.Options{
		TTL:              d.CarryoverTTL,
		CompanyCap:       d.CompanyCap,
		NewBatchCap:      d.RelevanceBatchCap,
		CarryoverCap:     d.CarryoverCap,
		ClusterThreshold: d.ClusterThreshold,
		MaxBullets:       d.MaxBullets,
	}, a.logger)
}

// buildOrchestrator wires the batch pipeline.
func (a *app) buildOrchestrator(ctx context.Context, dryRun bool) (*orchestrator.Orchestrator, error) {
	selector, err := a.setupSelector(ctx)
	if err != nil {
		return nil, err
	}
	mailer, err := a.setupMailer()
	if err != nil {
		return nil, err
	}
	locker, err := a.setupLocker(ctx)
	if err != nil {
		return nil, err
	}

	retention := a.cfg.Digest.Retention
	if dryRun {
		retention = 0
	}
	return orchestrator.New(a.sources, a.adapters, a.accounts, a.store, locker, a.assembler(selector), mailer, orchestrator.Options{
		UserConcurrency:  a.cfg.Run.UserConcurrency,
		LedgerRetries:    a.cfg.Run.LedgerRetries,
		MailTimeout:      a.cfg.Mail.Timeout,
		ClusterThreshold: a.cfg.Digest.ClusterThreshold,
		Retention:        retention,
		FetchConnections: a.cfg.Fetch.MaxConnections,
		FetchTimeout:     a.cfg.Fetch.Timeout,
		Validation:       a.validateOptions(false),
		DryRun:           dryRun,
	}, a.logger), nil
}
