package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrRoleNotFound         = errors.New("role not found")
	ErrRoleInUse            = errors.New("role is assigned to at least one user")
	ErrEditConflict         = errors.New("record was modified concurrently")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrDuplicateMatricula   = errors.New("matricula already assigned")
	ErrDuplicateRoleName    = errors.New("role name already exists")
	ErrDuplicateSubjectName = errors.New("subject name already exists")
	ErrInvalidReference     = errors.New("referenced record does not exist")
)

// keyed by the PostgreSQL constraint name; SQLite messages are mapped onto
// the same names by uniqueConstraint
var uniqueConstraintErrors = map[string]error{
	"users_email_key":     ErrDuplicateEmail,
	"users_matricula_key": ErrDuplicateMatricula,
	"roles_name_key":      ErrDuplicateRoleName,
	"subjects_name_key":   ErrDuplicateSubjectName,
}

// uniqueConstraint returns the name of the unique constraint err violated.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		// "... UNIQUE constraint failed: users.email (2067)"
		_, rest, ok := strings.Cut(sqliteErr.Error(), "UNIQUE constraint failed: ")
		if !ok {
			return "", false
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", false
		}
		return strings.ReplaceAll(strings.TrimSuffix(fields[0], ","), ".", "_") + "_key", true
	}

	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}

	return false
}

// translate maps driver errors onto the repository's sentinel errors. The
// driver error stays in the chain.
func (r *Repository) translate(err error) error {
	if err == nil {
		return nil
	}

	if constraint, ok := uniqueConstraint(err); ok {
		if mapped, ok := uniqueConstraintErrors[constraint]; ok {
			return fmt.Errorf("%w: %w", mapped, err)
		}
		return err
	}

	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	return r.dialect.Contention(err)
}
