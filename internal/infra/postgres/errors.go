package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/antti/imagevault/internal/shared"
)

// uniqueViolation is Postgres error code 23505.
const uniqueViolation = "23505"

// conflictOnUnique converts a unique-constraint violation into the
// Conflict taxonomy kind, so a create that loses the race between its
// existence pre-check and the INSERT still surfaces as a Conflict rather
// than a transient storage failure. Any other error is wrapped as
// transient.
func conflictOnUnique(err error, conflictMsg, transientMsg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.NewConflictError(conflictMsg)
	}
	return shared.NewTransientError(err, transientMsg)
}
