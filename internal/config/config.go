package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobdigest/internal/model"
)

// Config is the root configuration for the digest engine.
type Config struct {
	Schedule   string
	Store      StoreConfig
	Lock       LockConfig
	Fetch      FetchConfig
	Validation ValidationConfig
	Digest     DigestConfig
	AI         AIConfig
	Mail       MailConfig
	Run        RunConfig
	Sources    []model.SourceConfig
	Users      []UserConfig
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// LockConfig selects how per-user run locks are held.
type LockConfig struct {
	Driver   string // "memory" or "redis"
	RedisURL string
	TTL      time.Duration
}

// FetchConfig bounds outbound source fetches.
type FetchConfig struct {
	Timeout        time.Duration
	MaxConnections int
	Retries        int
	RetryBaseDelay time.Duration
	RateLimit      RateLimitConfig
}

// RateLimitConfig throttles requests per provider family.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	PerProvider       map[string]float64
}

// ValidationConfig controls source probing.
type ValidationConfig struct {
	MaxAge       time.Duration // skip re-probing sources validated more recently
	ProbeTimeout time.Duration
	MinPostings  int
	Concurrency  int
}

// DigestConfig bounds each user's digest.
type DigestConfig struct {
	CarryoverTTL      time.Duration
	Retention         time.Duration // sent records unseen for longer are pruned
	CompanyCap        int
	RelevanceBatchCap int
	CarryoverCap      int
	ClusterThreshold  int
	MaxBullets        int
}

// AIConfig controls the relevance selection model.
type AIConfig struct {
	Enabled        bool
	Provider       string // "openai", "groq" or "gemini"
	BaseURL        string
	Model          string
	APIKey         string // expanded from env var by Load
	KeyringAccount string // used when APIKey is empty
	Timeout        time.Duration
	ShrinkRetries  int
}

// MailConfig selects the message delivery capability.
type MailConfig struct {
	Driver     string // "smtp", "slack" or "log"
	Timeout    time.Duration
	WebhookURL string
	SMTP       SMTPConfig
}

// SMTPConfig addresses the SMTP relay.
type SMTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	KeyringAccount string `yaml:"keyring_account"`
	From           string `yaml:"from"`
	TLS            string `yaml:"tls"` // implicit, starttls, opportunistic or none
}

// RunConfig controls batch execution.
type RunConfig struct {
	UserConcurrency int `yaml:"user_concurrency"`
	LedgerRetries   int `yaml:"ledger_retries"`
}

// UserConfig is a statically configured recipient with its preference.
type UserConfig struct {
	User       model.User
	Preference model.Preference
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Schedule   string              `yaml:"schedule"`
	Store      StoreConfig         `yaml:"store"`
	Lock       rawLockConfig       `yaml:"lock"`
	Fetch      rawFetchConfig      `yaml:"fetch"`
	Validation rawValidationConfig `yaml:"validation"`
	Digest     rawDigestConfig     `yaml:"digest"`
	AI         rawAIConfig         `yaml:"ai"`
	Mail       rawMailConfig       `yaml:"mail"`
	Run        RunConfig           `yaml:"run"`
	Sources    []rawSourceConfig   `yaml:"sources"`
	Users      []rawUserConfig     `yaml:"users"`
}

type rawLockConfig struct {
	Driver   string `yaml:"driver"`
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type rawFetchConfig struct {
	Timeout        string `yaml:"timeout"`
	MaxConnections int    `yaml:"max_connections"`
	Retries        *int   `yaml:"retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	RateLimit      struct {
		RequestsPerSecond float64            `yaml:"requests_per_second"`
		Burst             int                `yaml:"burst"`
		PerProvider       map[string]float64 `yaml:"per_provider"`
	} `yaml:"rate_limit"`
}

type rawValidationConfig struct {
	MaxAge       string `yaml:"max_age"`
	ProbeTimeout string `yaml:"probe_timeout"`
	MinPostings  int    `yaml:"min_postings"`
	Concurrency  int    `yaml:"concurrency"`
}

type rawDigestConfig struct {
	CarryoverTTL      string `yaml:"carryover_ttl"`
	Retention         string `yaml:"retention"`
	CompanyCap        int    `yaml:"company_cap"`
	RelevanceBatchCap int    `yaml:"relevance_batch_cap"`
	CarryoverCap      int    `yaml:"carryover_cap"`
	ClusterThreshold  int    `yaml:"cluster_threshold"`
	MaxBullets        int    `yaml:"max_bullets"`
}

type rawAIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	KeyringAccount string `yaml:"keyring_account"`
	Timeout        string `yaml:"timeout"`
	ShrinkRetries  *int   `yaml:"shrink_retries"`
}

type rawMailConfig struct {
	Driver     string     `yaml:"driver"`
	Timeout    string     `yaml:"timeout"`
	WebhookURL string     `yaml:"webhook_url"`
	SMTP       SMTPConfig `yaml:"smtp"`
}

type rawSourceConfig struct {
	ID       string         `yaml:"id"`
	Provider string         `yaml:"provider"`
	Company  string         `yaml:"company"`
	Priority int            `yaml:"priority"`
	Paused   bool           `yaml:"paused"`
	Params   map[string]any `yaml:"params"`
}

type rawUserConfig struct {
	ID         string        `yaml:"id"`
	Email      string        `yaml:"email"`
	Timezone   string        `yaml:"timezone"`
	Active     *bool         `yaml:"active"`
	Preference rawPreference `yaml:"preference"`
}

type rawPreference struct {
	Keyword          string   `yaml:"keyword"`
	RemoteOnly       bool     `yaml:"remote_only"`
	StrictSeniorOnly bool     `yaml:"strict_senior_only"`
	TargetRoles      []string `yaml:"target_roles"`
	TechStackTags    []string `yaml:"tech_stack_tags"`
	NegativeKeywords []string `yaml:"negative_keywords"`
	Sources          []string `yaml:"sources"`
	LLMInputLimit    int      `yaml:"llm_input_limit"`
	MaxBullets       int      `yaml:"max_bullets"`
	ExperienceLevel  string   `yaml:"experience_level"`
	AlertFrequency   string   `yaml:"alert_frequency"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// A .env file next to the config supplies variables not already set.
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var p durationParser
	cfg := &Config{
		Schedule: orDefault(raw.Schedule, "@every 6h"),
		Store:    raw.Store,
		Lock: LockConfig{
			Driver:   orDefault(raw.Lock.Driver, "memory"),
			RedisURL: raw.Lock.RedisURL,
			TTL:      p.parse("lock.ttl", raw.Lock.TTL, 30*time.Minute),
		},
		Fetch: FetchConfig{
			Timeout:        p.parse("fetch.timeout", raw.Fetch.Timeout, 30*time.Second),
			MaxConnections: intOr(raw.Fetch.MaxConnections, 8),
			Retries:        intPtrOr(raw.Fetch.Retries, 2),
			RetryBaseDelay: p.parse("fetch.retry_base_delay", raw.Fetch.RetryBaseDelay, 2*time.Second),
			RateLimit: RateLimitConfig{
				RequestsPerSecond: raw.Fetch.RateLimit.RequestsPerSecond,
				Burst:             intOr(raw.Fetch.RateLimit.Burst, 1),
				PerProvider:       raw.Fetch.RateLimit.PerProvider,
			},
		},
		Validation: ValidationConfig{
			MaxAge:       p.parse("validation.max_age", raw.Validation.MaxAge, 24*time.Hour),
			ProbeTimeout: p.parse("validation.probe_timeout", raw.Validation.ProbeTimeout, 10*time.Second),
			MinPostings:  intOr(raw.Validation.MinPostings, 1),
			Concurrency:  intOr(raw.Validation.Concurrency, 4),
		},
		Digest: DigestConfig{
			CarryoverTTL:      p.parse("digest.carryover_ttl", raw.Digest.CarryoverTTL, 336*time.Hour),
			Retention:         p.parse("digest.retention", raw.Digest.Retention, 2160*time.Hour),
			CompanyCap:        intOr(raw.Digest.CompanyCap, 3),
			RelevanceBatchCap: intOr(raw.Digest.RelevanceBatchCap, 15),
			CarryoverCap:      intOr(raw.Digest.CarryoverCap, 10),
			ClusterThreshold:  intOr(raw.Digest.ClusterThreshold, 3),
			MaxBullets:        intOr(raw.Digest.MaxBullets, 8),
		},
		AI: AIConfig{
			Enabled:        raw.AI.Enabled,
			Provider:       strings.ToLower(orDefault(raw.AI.Provider, "openai")),
			BaseURL:        raw.AI.BaseURL,
			Model:          raw.AI.Model,
			APIKey:         raw.AI.APIKey,
			KeyringAccount: raw.AI.KeyringAccount,
			Timeout:        p.parse("ai.timeout", raw.AI.Timeout, 60*time.Second),
			ShrinkRetries:  intPtrOr(raw.AI.ShrinkRetries, 3),
		},
		Mail: MailConfig{
			Driver:     strings.ToLower(orDefault(raw.Mail.Driver, "log")),
			Timeout:    p.parse("mail.timeout", raw.Mail.Timeout, 30*time.Second),
			WebhookURL: raw.Mail.WebhookURL,
			SMTP:       raw.Mail.SMTP,
		},
		Run: RunConfig{
			UserConcurrency: intOr(raw.Run.UserConcurrency, 4),
			LedgerRetries:   intOr(raw.Run.LedgerRetries, 3),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "jobdigest.db"
	}
	if cfg.Mail.SMTP.Host == "" {
		cfg.Mail.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}
	if cfg.Mail.SMTP.From == "" {
		cfg.Mail.SMTP.From = cfg.Mail.SMTP.Username
	}
	if cfg.Mail.SMTP.TLS == "" {
		cfg.Mail.SMTP.TLS = "starttls"
		if cfg.Mail.SMTP.Port == 465 {
			cfg.Mail.SMTP.TLS = "implicit"
		}
	}

	for _, s := range raw.Sources {
		cfg.Sources = append(cfg.Sources, model.SourceConfig{
			ID:       strings.TrimSpace(s.ID),
			Provider: strings.ToLower(strings.TrimSpace(s.Provider)),
			Company:  s.Company,
			Priority: s.Priority,
			Paused:   s.Paused,
			Params:   s.Params,
		})
	}

	for _, u := range raw.Users {
		active := true
		if u.Active != nil {
			active = *u.Active
		}
		cfg.Users = append(cfg.Users, UserConfig{
			User: model.User{
				ID:       u.ID,
				Email:    u.Email,
				Timezone: orDefault(u.Timezone, "UTC"),
				Active:   active,
			},
			Preference: model.Preference{
				Keyword:          u.Preference.Keyword,
				TargetRoles:      u.Preference.TargetRoles,
				TechStackTags:    u.Preference.TechStackTags,
				NegativeKeywords: u.Preference.NegativeKeywords,
				RemoteOnly:       u.Preference.RemoteOnly,
				StrictSeniorOnly: u.Preference.StrictSeniorOnly,
				ExperienceLevel:  strings.ToLower(u.Preference.ExperienceLevel),
				Sources:          u.Preference.Sources,
				LLMInputLimit:    u.Preference.LLMInputLimit,
				MaxBullets:       u.Preference.MaxBullets,
				AlertFrequency:   model.AlertFrequency(strings.ToLower(orDefault(u.Preference.AlertFrequency, "always"))),
			},
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationParser keeps the first parse error so Load can build Config in one
// expression.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, raw string, def time.Duration) time.Duration {
	if raw == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, raw, err)
		return def
	}
	return d
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func intPtrOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}

	switch cfg.Lock.Driver {
	case "memory":
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required when lock.driver is \"redis\"")
		}
	default:
		return fmt.Errorf("unknown lock.driver %q", cfg.Lock.Driver)
	}

	for name, v := range map[string]int{
		"fetch.max_connections":      cfg.Fetch.MaxConnections,
		"validation.concurrency":     cfg.Validation.Concurrency,
		"digest.company_cap":         cfg.Digest.CompanyCap,
		"digest.relevance_batch_cap": cfg.Digest.RelevanceBatchCap,
		"digest.carryover_cap":       cfg.Digest.CarryoverCap,
		"digest.cluster_threshold":   cfg.Digest.ClusterThreshold,
		"digest.max_bullets":         cfg.Digest.MaxBullets,
		"run.user_concurrency":       cfg.Run.UserConcurrency,
		"run.ledger_retries":         cfg.Run.LedgerRetries,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if cfg.Fetch.Retries < 0 || cfg.AI.ShrinkRetries < 0 {
		return fmt.Errorf("fetch.retries and ai.shrink_retries must not be negative")
	}
	if cfg.Digest.CarryoverTTL <= 0 {
		return fmt.Errorf("digest.carryover_ttl must be positive, got %v", cfg.Digest.CarryoverTTL)
	}
	if cfg.Digest.Retention < cfg.Digest.CarryoverTTL {
		return fmt.Errorf("digest.retention (%v) must be at least digest.carryover_ttl (%v)", cfg.Digest.Retention, cfg.Digest.CarryoverTTL)
	}

	switch cfg.Mail.Driver {
	case "log":
	case "slack":
		if !strings.HasPrefix(cfg.Mail.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("mail.webhook_url must start with https://hooks.slack.com/")
		}
	case "smtp":
		if cfg.Mail.SMTP.From == "" {
			return fmt.Errorf("mail.smtp.from (or mail.smtp.username) is required when mail.driver is \"smtp\"")
		}
		switch cfg.Mail.SMTP.TLS {
		case "implicit", "starttls", "opportunistic", "none":
		default:
			return fmt.Errorf("unknown mail.smtp.tls %q (want implicit, starttls, opportunistic or none)", cfg.Mail.SMTP.TLS)
		}
	default:
		return fmt.Errorf("unknown mail.driver %q", cfg.Mail.Driver)
	}

	if cfg.AI.Enabled {
		switch cfg.AI.Provider {
		case "openai", "groq", "gemini":
		default:
			return fmt.Errorf("unknown ai.provider %q", cfg.AI.Provider)
		}
		if cfg.AI.APIKey == "" && cfg.AI.KeyringAccount == "" {
			return fmt.Errorf("ai.api_key or ai.keyring_account is required when ai.enabled is true")
		}
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if s.Provider == "" {
			return fmt.Errorf("source %s: provider is required", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}

	users := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		if u.User.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if users[u.User.ID] {
			return fmt.Errorf("duplicate user id %q", u.User.ID)
		}
		users[u.User.ID] = true
		if u.User.Email == "" {
			return fmt.Errorf("user %s: email is required", u.User.ID)
		}
		switch u.Preference.AlertFrequency {
		case model.AlertAlways, model.AlertDaily, model.AlertWeekly:
		default:
			return fmt.Errorf("user %s: unknown alert_frequency %q", u.User.ID, u.Preference.AlertFrequency)
		}
		if l := u.Preference.LLMInputLimit; l < 0 || l > 80 {
			return fmt.Errorf("user %s: llm_input_limit must be between 1 and 80, got %d", u.User.ID, l)
		}
		if b := u.Preference.MaxBullets; b < 0 || b > 20 {
			return fmt.Errorf("user %s: max_bullets must be between 1 and 20, got %d", u.User.ID, b)
		}
		switch u.Preference.ExperienceLevel {
		case "", "entry", "mid", "senior":
		default:
			return fmt.Errorf("user %s: unknown experience_level %q", u.User.ID, u.Preference.ExperienceLevel)
		}
	}

	return nil
}

// CheckProviders reports the first source whose provider is not supported.
func (c *Config) CheckProviders(supported func(string) bool) error {
	for _, s := range c.Sources {
		if !supported(s.Provider) {
			return fmt.Errorf("source %s: unknown provider %q", s.ID, s.Provider)
		}
	}
	return nil
}
