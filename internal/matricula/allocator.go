package matricula

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrContention is returned when the namespace lock could not be taken
	// before the store's lock timeout. The whole registration may be retried.
	ErrContention = errors.New("matricula: namespace lock not acquired in time")

	ErrInvalidPrefix = errors.New("matricula: prefix must be a single uppercase letter")
)

// Querier is the read side shared by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Allocator struct {
	dialect     Dialect
	lockTimeout time.Duration
}

// NewAllocator builds an allocator for the given store. lockTimeout bounds
// how long Allocate waits for the namespace lock on stores that support a
// per-transaction setting; zero keeps the server default.
func NewAllocator(dialect Dialect, lockTimeout time.Duration) *Allocator {
	return &Allocator{
		dialect:     dialect,
		lockTimeout: lockTimeout,
	}
}

func (a *Allocator) Dialect() Dialect {
	return a.dialect
}

// Allocate computes the next identifier for prefix inside tx and keeps the
// prefix namespace locked until tx commits or rolls back. The caller must
// insert the row that consumes the identifier in the same transaction.
// Nothing is written here.
func (a *Allocator) Allocate(ctx context.Context, tx *sql.Tx, prefix string) (string, error) {
	if !ValidPrefix(prefix) {
		return "", ErrInvalidPrefix
	}

	if err := a.dialect.lock(ctx, tx, prefix, a.lockTimeout); err != nil {
		return "", fmt.Errorf("lock %s namespace: %w", prefix, a.dialect.Contention(err))
	}

	highest, found, err := a.dialect.highest(ctx, tx, prefix, true)
	if err != nil {
		return "", fmt.Errorf("scan %s namespace: %w", prefix, a.dialect.Contention(err))
	}

	return Next(prefix, highest, found), nil
}

// Preview computes the identifier Allocate would hand out right now, without
// taking any lock. Concurrent registrations may claim it first.
func (a *Allocator) Preview(ctx context.Context, q Querier, prefix string) (string, error) {
	if !ValidPrefix(prefix) {
		return "", ErrInvalidPrefix
	}

	highest, found, err := a.dialect.highest(ctx, q, prefix, false)
	if err != nil {
		return "", fmt.Errorf("scan %s namespace: %w", prefix, err)
	}

	return Next(prefix, highest, found), nil
}
