package repository

import (
	"github.com/google/wire"

	"github.com/janhq/usage-sync/internal/infrastructure/database/repository/commitrepo"
	"github.com/janhq/usage-sync/internal/infrastructure/database/repository/identityrepo"
	"github.com/janhq/usage-sync/internal/infrastructure/database/repository/syncstaterepo"
	"github.com/janhq/usage-sync/internal/infrastructure/database/repository/usagerepo"
)

var RepositoryProvider = wire.NewSet(
	usagerepo.NewUsageGormRepository,
	commitrepo.NewCommitGormRepository,
	syncstaterepo.NewSyncStateGormRepository,
	identityrepo.NewIdentityGormResolver,
)
