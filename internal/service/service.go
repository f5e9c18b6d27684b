package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/database"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/validation"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// structValidator is satisfied by *validation.Validator and *validator.Validate.
type structValidator interface {
	Struct(s interface{}) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// Actor identifies the caller of a role scoped operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func defaultValidator(v structValidator) structValidator {
	if v == nil {
		return validation.New()
	}
	return v
}

func validate(v structValidator, payload interface{}, message string) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// internalError wraps err as a 500. An identifier Postgres could not parse
// names no row, so it becomes NOT_FOUND instead.
func internalError(err error, message string) error {
	if database.IsInvalidText(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps a missing or malformed row id to NOT_FOUND and anything
// else to a 500.
func lookupError(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) || database.IsInvalidText(err) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return internalError(err, "failed to load "+resource)
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func withTx(ctx context.Context, db txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return internalError(err, "failed to commit transaction")
	}
	return nil
}

// observeRejection counts domain rejections by error code.
func observeRejection(metrics *MetricsService, err error) {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) || appErr.Status >= 500 {
		return
	}
	metrics.RecordRejection(appErr.Code)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
