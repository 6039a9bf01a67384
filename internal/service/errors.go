package service

import (
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// upstream maps a store failure to UpstreamUnavailable unless it is already typed.
func upstream(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, message)
}

// notFoundOr maps sql.ErrNoRows to NotFound and everything else to upstream.
func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return upstream(err, message)
}

// validationError wraps validator output, naming the first failing field.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		message = message + ": " + first.Namespace() + " failed " + first.Tag()
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
