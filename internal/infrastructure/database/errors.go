package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/janhq/usage-sync/internal/utils/platformerrors"
)

// AsRepositoryError wraps a gorm error as a repository PlatformError, typed
// by the postgres SQLSTATE class when the driver reports one.
func AsRepositoryError(ctx context.Context, err error, message string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, message)
	}

	errorType := platformerrors.ErrorTypeDatabaseError
	switch {
	case pgErr.Code == "23505":
		errorType = platformerrors.ErrorTypeConflict
	case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
		errorType = platformerrors.ErrorTypeValidation
	case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "42"):
		errorType = platformerrors.ErrorTypeValidation
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, errorType, message, err, "", map[string]any{
		"sqlstate":   pgErr.Code,
		"constraint": pgErr.ConstraintName,
		"table":      pgErr.TableName,
	})
}
