package domain

import (
	"github.com/google/wire"

	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/domain/usage"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	usage.NewWriter,
	commit.NewWriter,
)
