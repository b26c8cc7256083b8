package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

// txRunner opens a transaction whose handle travels in the context passed to fn.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time; services default to UTC wall time.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}

func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps sql.ErrNoRows to a NotFound error and anything else to Internal.
func lookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, internal)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
