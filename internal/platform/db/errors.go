package db

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Classify maps pgx.ErrNoRows to a NotFound error naming what, and any other
// failure to Persistence. Errors that already carry a kind pass through.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, err, "%s not found", what)
	}
	return apperr.DB(err, what)
}
