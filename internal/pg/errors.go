package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/willibrandon/copgy/internal/stream"
)

// ConnectionError reports a connection that could not be established or
// validated. Target is the redacted connection URL.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *ConnectionError) Kind() errkind.Kind { return errkind.Connection }

// SQLSTATE classes the server uses when it refuses to start a COPY FROM:
// syntax error or access rule violation, invalid schema name, feature not
// supported, invalid transaction state.
var rejectedClasses = map[string]bool{
	"42": true,
	"3F": true,
	"0A": true,
	"25": true,
}

// classifyImportError marks server errors that mean the import never started
// with stream.ErrRejected.
func classifyImportError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && rejectedClasses[pgErr.Code[:2]] {
		return fmt.Errorf("%w: %w", stream.ErrRejected, err)
	}
	return err
}
