package infrastructure

import (
	"context"
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/janhq/usage-sync/internal/config"
	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/domain/identity"
	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/domain/syncstate"
	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/infrastructure/crontab"
	"github.com/janhq/usage-sync/internal/infrastructure/database"
	"github.com/janhq/usage-sync/internal/infrastructure/database/repository"
	"github.com/janhq/usage-sync/internal/infrastructure/database/repository/identityrepo"
	"github.com/janhq/usage-sync/internal/infrastructure/logger"
	"github.com/janhq/usage-sync/internal/infrastructure/memstore"
	"github.com/janhq/usage-sync/internal/infrastructure/metrics"
	"github.com/janhq/usage-sync/internal/infrastructure/observability"
	"github.com/janhq/usage-sync/internal/infrastructure/providers/anthropic"
	"github.com/janhq/usage-sync/internal/infrastructure/providers/cursor"
	"github.com/janhq/usage-sync/internal/infrastructure/providers/github"
	"github.com/janhq/usage-sync/internal/interfaces/httpserver"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

// ProvideLogger installs the configured global logger.
func ProvideLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

func ProvideSanitizer(cfg *config.Config) *redact.Sanitizer {
	return redact.NewSanitizer(redact.Level(cfg.LogRedactionLevel), cfg.LogRedactionSalt)
}

// ProvideDatabase connects to postgres and applies migrations when AUTO_MIGRATE is set.
func ProvideDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnLifetime,
		LogLevel:    database.GormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := database.AutoMigrate(ctx, db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			cleanup()
			return nil, nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}
	return db, cleanup, nil
}

// ProvidePostgresReadiness pings the database.
func ProvidePostgresReadiness(db *gorm.DB) httpserver.ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// ProvideMemoryReadiness is always ready.
func ProvideMemoryReadiness() httpserver.ReadinessCheck {
	return nil
}

// ProvideStaticIdentities loads the file based identity mappings.
func ProvideStaticIdentities(cfg *config.Config) *identity.Static {
	return identity.NewStatic(cfg.IdentityMappings)
}

// ProvidePostgresIdentityResolver consults the file mappings before the table.
func ProvidePostgresIdentityResolver(static *identity.Static, table *identityrepo.IdentityGormResolver) identity.Resolver {
	return identity.Chain{static, table}
}

func ProvideMemoryIdentityResolver(static *identity.Static) identity.Resolver {
	return identity.Chain{static}
}

// ProvideMetricsRegistry returns the registry scraped on /metrics.
func ProvideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetricsRecorder(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewRecorder(reg)
}

// ProvideObservability sets up OTLP export.
func ProvideObservability(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*observability.Provider, func(), error) {
	provider, err := observability.Setup(ctx, observability.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "unknown",
		Namespace:      cfg.ServiceNamespace,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPHeaders:    observability.ParseHeaders(cfg.OTLPHeaders),
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}
	return provider, cleanup, nil
}

func ProvideJobInstrumenter(provider *observability.Provider) (*observability.JobInstrumenter, error) {
	return observability.NewJobInstrumenter(provider.Tracer, provider.Meter, "usage_sync")
}

func ProvideAnthropicClient(cfg *config.Config, resolver identity.Resolver, sanitizer *redact.Sanitizer, log zerolog.Logger) *anthropic.Client {
	return anthropic.NewClient(anthropic.Config{
		BaseURL:     cfg.AnthropicBaseURL,
		APIKey:      cfg.AnthropicAdminAPIKey,
		PageSize:    cfg.AnthropicPageSize,
		Timeout:     cfg.HTTPTimeout,
		KeyOwnerTTL: cfg.AnthropicKeyOwnerCache,
	}, resolver, sanitizer, log)
}

func ProvideCursorClient(cfg *config.Config, log zerolog.Logger) *cursor.Client {
	return cursor.NewClient(cursor.Config{
		BaseURL:  cfg.CursorBaseURL,
		APIKey:   cfg.CursorAdminAPIKey,
		PageSize: cfg.CursorPageSize,
		Timeout:  cfg.HTTPTimeout,
	}, log)
}

func ProvideGitHubClient(cfg *config.Config, resolver identity.Resolver, sanitizer *redact.Sanitizer, log zerolog.Logger) (*github.Client, error) {
	repos, err := github.ParseRepoRefs(cfg.GitHubRepos)
	if err != nil {
		return nil, err
	}
	return github.NewClient(github.Config{
		APIBaseURL:     cfg.GitHubAPIURL,
		GraphQLURL:     cfg.GitHubGraphQLURL,
		Token:          cfg.GitHubToken,
		AppID:          cfg.GitHubAppID,
		InstallationID: cfg.GitHubInstallationID,
		PrivateKey:     cfg.GitHubPrivateKey,
		Org:            cfg.GitHubOrg,
		Repos:          repos,
		PerPage:        cfg.GitHubPerPage,
		DetailInterval: cfg.GitHubDetailDelay,
		EmailTTL:       cfg.GitHubVerifiedEmailsTTL,
		Timeout:        cfg.HTTPTimeout,
	}, resolver, sanitizer, log), nil
}

// Clients groups the upstream provider clients.
type Clients struct {
	Anthropic *anthropic.Client
	Cursor    *cursor.Client
	GitHub    *github.Client
}

// Stores groups the storage dependencies of the engines.
type Stores struct {
	Usage     usage.Repository
	Commits   commit.Store
	SyncState syncstate.Repository
}

// ProvideIngestService builds one engine per enabled provider.
func ProvideIngestService(
	cfg *config.Config,
	clients *Clients,
	stores *Stores,
	usageWriter *usage.Writer,
	commitWriter *commit.Writer,
	recorder *metrics.Recorder,
	log zerolog.Logger,
) *ingest.Service {
	options := func(interval time.Duration) ingest.Options {
		opts := ingest.DefaultOptions()
		opts.Lookback = cfg.SyncLookback
		opts.EmptyDaysToComplete = cfg.BackfillEmptyThreshold
		opts.RequestInterval = interval
		opts.Recorder = recorder
		return opts
	}

	var syncers []ingest.Syncer
	for _, id := range cfg.EnabledProviders {
		switch id {
		case anthropic.ProviderID:
			sink := ingest.NewUsageSink(usageWriter, stores.Usage, anthropic.Tool, usage.RegimeAggregated)
			syncers = append(syncers, ingest.NewEngine[usage.Record](clients.Anthropic, sink, stores.SyncState, options(cfg.AnthropicRequestDelay), log))
		case cursor.ProviderID:
			sink := ingest.NewUsageSink(usageWriter, stores.Usage, cursor.Tool, usage.RegimePerEvent)
			syncers = append(syncers, ingest.NewEngine[usage.Record](clients.Cursor, sink, stores.SyncState, options(cfg.CursorRequestDelay), log))
		case github.ProviderID:
			sink := ingest.NewCommitSink(commitWriter, stores.Commits, commit.SourceGitHub)
			syncers = append(syncers, ingest.NewEngine[commit.Record](clients.GitHub, sink, stores.SyncState, options(cfg.GitHubRequestDelay), log))
		default:
			log.Warn().Str("provider", id).Msg("ignoring unknown provider in SYNC_PROVIDERS")
		}
	}
	return ingest.NewService(syncers...)
}

func ProvideSchedule(cfg *config.Config) crontab.Schedule {
	return crontab.Schedule{
		ForwardCron:    cfg.ForwardCron,
		BackfillCron:   cfg.BackfillCron,
		JobTimeout:     cfg.JobTimeout,
		RunOnStart:     cfg.RunOnStart,
		BackfillTarget: func() time.Time { return cfg.BackfillTarget },
	}
}

func ProvideHTTPServer(cfg *config.Config, reg *prometheus.Registry, ready httpserver.ReadinessCheck, service *ingest.Service, log zerolog.Logger) *httpserver.HTTPServer {
	return httpserver.New(httpserver.Options{
		ServiceName:     cfg.ServiceName,
		Port:            cfg.MetricsPort,
		Production:      cfg.Environment == "production",
		ShutdownTimeout: cfg.ShutdownTimeout,
		Gatherer:        reg,
		Ready:           ready,
	}, service, log)
}

// PostgresStorageProvider backs the engines with gorm repositories.
var PostgresStorageProvider = wire.NewSet(
	ProvideDatabase,
	repository.RepositoryProvider,
	ProvidePostgresIdentityResolver,
	ProvidePostgresReadiness,
	wire.Struct(new(Stores), "*"),
)

// MemoryStorageProvider backs the engines with process-local stores.
var MemoryStorageProvider = wire.NewSet(
	memstore.NewUsageStore,
	wire.Bind(new(usage.Repository), new(*memstore.UsageStore)),
	memstore.NewCommitStore,
	wire.Bind(new(commit.Store), new(*memstore.CommitStore)),
	memstore.NewSyncStateStore,
	wire.Bind(new(syncstate.Repository), new(*memstore.SyncStateStore)),
	ProvideMemoryIdentityResolver,
	ProvideMemoryReadiness,
	wire.Struct(new(Stores), "*"),
)

// InfrastructureProvider provides all storage independent infrastructure
var InfrastructureProvider = wire.NewSet(
	// Logging
	ProvideLogger,
	ProvideSanitizer,
	ProvideStaticIdentities,

	// Observability
	ProvideMetricsRegistry,
	ProvideMetricsRecorder,
	ProvideObservability,
	ProvideJobInstrumenter,

	// Upstream clients
	ProvideAnthropicClient,
	ProvideCursorClient,
	ProvideGitHubClient,
	wire.Struct(new(Clients), "*"),

	// Sync engines and scheduling
	ProvideIngestService,
	ProvideSchedule,
	crontab.NewCrontab,

	// Operational HTTP
	ProvideHTTPServer,
)
