//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/janhq/usage-sync/internal/config"
	"github.com/janhq/usage-sync/internal/domain"
	"github.com/janhq/usage-sync/internal/infrastructure"
)

func CreatePostgresApplication(ctx context.Context, cfg *config.Config) (*Application, func(), error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		infrastructure.PostgresStorageProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

func CreateMemoryApplication(ctx context.Context, cfg *config.Config) (*Application, func(), error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		infrastructure.MemoryStorageProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
