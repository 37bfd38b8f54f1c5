package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all environment backed configuration for usage-sync.
type Config struct {
	// Storage
	StorageDriver  string        `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	// Scheduling
	ForwardCron            string        `env:"SYNC_FORWARD_CRON" envDefault:"*/15 * * * *"`
	BackfillCron           string        `env:"SYNC_BACKFILL_CRON" envDefault:"7 * * * *"`
	JobTimeout             time.Duration `env:"SYNC_JOB_TIMEOUT" envDefault:"30m"`
	RunOnStart             bool          `env:"SYNC_RUN_ON_START" envDefault:"true"`
	EnabledProviders       []string      `env:"SYNC_PROVIDERS" envSeparator:"," envDefault:"anthropic,cursor,github"`
	SyncLookback           time.Duration `env:"SYNC_LOOKBACK" envDefault:"24h"`
	BackfillTargetDate     string        `env:"BACKFILL_TARGET_DATE"`
	BackfillLookbackDays   int           `env:"BACKFILL_LOOKBACK_DAYS" envDefault:"365"`
	BackfillEmptyThreshold int           `env:"BACKFILL_EMPTY_THRESHOLD" envDefault:"7"`
	BackfillTarget         time.Time     `env:"-"`

	// Usage provider A
	AnthropicAdminAPIKey   string        `env:"ANTHROPIC_ADMIN_API_KEY"`
	AnthropicBaseURL       string        `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	AnthropicPageSize      int           `env:"ANTHROPIC_PAGE_SIZE" envDefault:"1000"`
	AnthropicRequestDelay  time.Duration `env:"ANTHROPIC_REQUEST_DELAY" envDefault:"1s"`
	AnthropicKeyOwnerCache time.Duration `env:"ANTHROPIC_KEY_OWNER_TTL" envDefault:"1h"`

	// Usage provider B
	CursorAdminAPIKey  string        `env:"CURSOR_ADMIN_API_KEY"`
	CursorBaseURL      string        `env:"CURSOR_BASE_URL" envDefault:"https://api.cursor.com"`
	CursorPageSize     int           `env:"CURSOR_PAGE_SIZE" envDefault:"500"`
	CursorRequestDelay time.Duration `env:"CURSOR_REQUEST_DELAY" envDefault:"1s"`

	// Commit host
	GitHubAPIURL            string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	GitHubGraphQLURL        string        `env:"GITHUB_GRAPHQL_URL"`
	GitHubToken             string        `env:"GITHUB_TOKEN"`
	GitHubAppID             string        `env:"GITHUB_APP_ID"`
	GitHubInstallationID    string        `env:"GITHUB_APP_INSTALLATION_ID"`
	GitHubPrivateKey        string        `env:"GITHUB_APP_PRIVATE_KEY"`
	GitHubPrivateKeyFile    string        `env:"GITHUB_APP_PRIVATE_KEY_FILE"`
	GitHubOrg               string        `env:"GITHUB_ORG"`
	GitHubRepos             []string      `env:"GITHUB_REPOS" envSeparator:","`
	GitHubReposFile         string        `env:"GITHUB_REPOS_FILE"`
	GitHubPerPage           int           `env:"GITHUB_PER_PAGE" envDefault:"100"`
	GitHubRequestDelay      time.Duration `env:"GITHUB_REQUEST_DELAY" envDefault:"250ms"`
	GitHubDetailDelay       time.Duration `env:"GITHUB_DETAIL_DELAY" envDefault:"100ms"`
	GitHubVerifiedEmailsTTL time.Duration `env:"GITHUB_VERIFIED_EMAILS_TTL" envDefault:"1h"`

	// Identity mappings loaded from file, used on top of the database table.
	IdentityMappingsFile string                       `env:"IDENTITY_MAPPINGS_FILE"`
	IdentityMappings     map[string]map[string]string `env:"-"`

	// Observability / Logging
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	MetricsPort       int           `env:"METRICS_PORT" envDefault:"9091"`
	OTELEnabled       bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders       string        `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName       string        `env:"SERVICE_NAME" envDefault:"usage-sync"`
	ServiceNamespace  string        `env:"SERVICE_NAMESPACE" envDefault:"jan"`
	Environment       string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"console"`
	LogRedactionLevel string        `env:"LOG_REDACTION_LEVEL" envDefault:"hashed"`
	LogRedactionSalt  string        `env:"LOG_REDACTION_SALT"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(time.Now().UTC()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize(now time.Time) error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q, want %q or %q", c.StorageDriver, StorageDriverPostgres, StorageDriverMemory)
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.LogRedactionLevel = strings.ToLower(c.LogRedactionLevel)

	providers := make([]string, 0, len(c.EnabledProviders))
	for _, p := range c.EnabledProviders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers = append(providers, p)
		}
	}
	c.EnabledProviders = providers

	if c.BackfillEmptyThreshold < 1 {
		return fmt.Errorf("BACKFILL_EMPTY_THRESHOLD must be at least 1, got %d", c.BackfillEmptyThreshold)
	}
	if c.SyncLookback <= 0 {
		return fmt.Errorf("SYNC_LOOKBACK must be positive, got %s", c.SyncLookback)
	}

	if target := strings.TrimSpace(c.BackfillTargetDate); target != "" {
		t, err := time.Parse(time.DateOnly, target)
		if err != nil {
			return fmt.Errorf("invalid BACKFILL_TARGET_DATE %q: %w", target, err)
		}
		c.BackfillTarget = t
	} else {
		y, m, d := now.AddDate(0, 0, -c.BackfillLookbackDays).Date()
		c.BackfillTarget = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	if c.GitHubPrivateKey == "" && c.GitHubPrivateKeyFile != "" {
		data, err := os.ReadFile(filepath.Clean(c.GitHubPrivateKeyFile))
		if err != nil {
			return fmt.Errorf("read GITHUB_APP_PRIVATE_KEY_FILE: %w", err)
		}
		c.GitHubPrivateKey = string(data)
	}

	if c.GitHubReposFile != "" {
		repos, err := LoadRepositoryFile(c.GitHubReposFile)
		if err != nil {
			return err
		}
		c.GitHubRepos = append(c.GitHubRepos, repos...)
	}
	c.GitHubRepos = dedupe(c.GitHubRepos)

	if c.IdentityMappingsFile != "" {
		mappings, err := LoadIdentityMappings(c.IdentityMappingsFile)
		if err != nil {
			return err
		}
		c.IdentityMappings = mappings
	}
	return nil
}

// ProviderEnabled reports whether provider is in SYNC_PROVIDERS.
func (c *Config) ProviderEnabled(provider string) bool {
	for _, p := range c.EnabledProviders {
		if p == provider {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
