package matricula

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names the SQL store behind the allocator. Its value is the
// database/sql driver name.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(driver string) (Dialect, error) {
	switch d := Dialect(driver); d {
	case Postgres, SQLite:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// advisory lock class shared by every allocator; the second key is the prefix
const advisoryLockClass int32 = 0x4d41

// PostgreSQL SQLSTATE codes reported when a lock wait gives up
var pgContentionCodes = map[string]bool{
	"55P03": true, // lock_not_available
	"40P01": true, // deadlock_detected
	"40001": true, // serialization_failure
}

// IsContention reports whether err is the store refusing to grant a lock in
// time.
func (d Dialect) IsContention(err error) bool {
	if err == nil {
		return false
	}

	switch d {
	case Postgres:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return pgContentionCodes[pgErr.Code]
		}
	case SQLite:
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.Code() & 0xff {
			case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
				return true
			}
		}
	}
	return false
}

// Contention marks lock wait failures with ErrContention and returns any
// other error unchanged.
func (d Dialect) Contention(err error) error {
	if d.IsContention(err) {
		return fmt.Errorf("%w: %w", ErrContention, err)
	}
	return err
}

// lock takes the per-prefix write lock inside tx.
//
// On PostgreSQL this is a transaction-scoped advisory lock keyed by the
// prefix, which also covers an empty namespace where FOR UPDATE has no rows
// to hold. lock_timeout bounds the wait for it and for the row locks that
// follow.
//
// SQLite connections are opened with _txlock=immediate, so the transaction
// already owns the single writer lock by the time it gets here.
func (d Dialect) lock(ctx context.Context, tx *sql.Tx, prefix string, timeout time.Duration) error {
	if d != Postgres {
		return nil
	}

	if timeout > 0 {
		query := `SELECT set_config('lock_timeout', $1, true)`
		if _, err := tx.ExecContext(ctx, query, fmt.Sprintf("%dms", timeout.Milliseconds())); err != nil {
			return err
		}
	}

	query := `SELECT pg_advisory_xact_lock($1, $2)`
	if _, err := tx.ExecContext(ctx, query, advisoryLockClass, int32(prefix[0])); err != nil {
		return err
	}
	return nil
}

// highest returns the stored identifier with the largest numeric part in the
// prefix namespace. With forUpdate the matching rows are locked until tx ends.
func (d Dialect) highest(ctx context.Context, q Querier, prefix string, forUpdate bool) (string, bool, error) {
	switch d {
	case Postgres:
		// the sort key must agree with Sequence: no digits, or a successor
		// that does not fit an int64, ranks as 0
		query := `
			SELECT matricula FROM users
			WHERE matricula LIKE $1
			ORDER BY CASE
				WHEN regexp_replace(matricula, '[^0-9]', '', 'g') = '' THEN 0
				WHEN regexp_replace(matricula, '[^0-9]', '', 'g')::numeric >= 9223372036854775807 THEN 0
				ELSE regexp_replace(matricula, '[^0-9]', '', 'g')::numeric
			END DESC
			LIMIT 1
		`
		if forUpdate {
			query += ` FOR UPDATE`
		}

		var value string
		if err := q.QueryRowContext(ctx, query, prefix+"%").Scan(&value); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", false, nil
			}
			return "", false, err
		}
		return value, true, nil

	case SQLite:
		// no regexp in SQLite, the numeric ordering happens here instead
		query := `SELECT matricula FROM users WHERE substr(matricula, 1, 1) = ?1`

		rows, err := q.QueryContext(ctx, query, prefix)
		if err != nil {
			return "", false, err
		}
		defer rows.Close()

		var (
			best  string
			found bool
		)
		for rows.Next() {
			var value string
			if err := rows.Scan(&value); err != nil {
				return "", false, err
			}
			if !found || Sequence(value) > Sequence(best) {
				best, found = value, true
			}
		}
		if err := rows.Err(); err != nil {
			return "", false, err
		}
		return best, found, nil
	}

	return "", false, fmt.Errorf("unsupported dialect %q", d)
}
