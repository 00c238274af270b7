package service

import (
	"database/sql"
	"errors"

	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

// storageErr classifies a repository failure: row absence becomes NotFound
// with the given message, anything else is a retryable Unavailable.
func storageErr(err error, notFoundMsg string) *appErrors.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
}

// unavailable wraps a repository failure that has no not-found meaning.
func unavailable(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
}
