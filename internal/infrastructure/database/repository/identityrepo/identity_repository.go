package identityrepo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/janhq/usage-sync/internal/domain/identity"
	"github.com/janhq/usage-sync/internal/infrastructure/database"
	"github.com/janhq/usage-sync/internal/infrastructure/database/dbschema"
)

// IdentityGormResolver reads the identity_mappings table. Rows are managed
// by operators; this service never writes them.
type IdentityGormResolver struct {
	db *gorm.DB
}

func NewIdentityGormResolver(db *gorm.DB) *IdentityGormResolver {
	return &IdentityGormResolver{db: db}
}

var _ identity.Resolver = (*IdentityGormResolver)(nil)

func (r *IdentityGormResolver) ResolveEmail(ctx context.Context, provider, externalID string) (string, bool, error) {
	var model dbschema.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", strings.ToLower(provider), externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, database.AsRepositoryError(ctx, err, "failed to resolve identity")
	}
	email := strings.ToLower(strings.TrimSpace(model.Email))
	return email, email != "", nil
}
