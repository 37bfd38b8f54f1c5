package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/usage-sync/internal/config"
	"github.com/janhq/usage-sync/internal/infrastructure/crontab"
	"github.com/janhq/usage-sync/internal/infrastructure/logger"
	"github.com/janhq/usage-sync/internal/interfaces/httpserver"
)

type Application struct {
	crontab    *crontab.Crontab
	httpServer *httpserver.HTTPServer
	log        zerolog.Logger
}

// Start runs the scheduler and the operational HTTP server until ctx is
// cancelled or one of them fails.
func (application *Application) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return application.crontab.Run(ctx)
	})
	eg.Go(func() error {
		return application.httpServer.Run(ctx)
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	create := CreatePostgresApplication
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("STORAGE_DRIVER=memory: sync state and records are lost on restart")
		create = CreateMemoryApplication
	}

	application, cleanup, err := create(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}
	defer cleanup()

	application.log.Info().
		Str("storage", cfg.StorageDriver).
		Strs("providers", cfg.EnabledProviders).
		Msg("usage-sync starting")

	if err := application.Start(ctx); err != nil {
		application.log.Error().Err(err).Msg("usage-sync stopped with error")
		return
	}
	application.log.Info().Msg("usage-sync stopped")
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Overload(path); err == nil {
			log := logger.GetLogger()
			log.Debug().Str("path", path).Msg("loaded env file")
		}
	}
}
