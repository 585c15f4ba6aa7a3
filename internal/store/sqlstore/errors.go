package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"lendinglibrary/internal/store"
)

// Postgres SQLSTATE codes that mean "another transaction won, try again".
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNoRecord
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && conflictCodes[string(pqErr.Code)] {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}

	return err
}
