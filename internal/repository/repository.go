package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Repository struct {
	cfg       *config.Config
	dbpool    *sql.DB
	dialect   matricula.Dialect
	allocator *matricula.Allocator
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) (*Repository, error) {
	dialect, err := matricula.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	return &Repository{
		cfg:       cfg,
		dbpool:    dbpool,
		dialect:   dialect,
		allocator: matricula.NewAllocator(dialect, time.Duration(cfg.Database.LockTimeout)*time.Millisecond),
	}, nil
}

// Open creates the connection pool for the configured driver and makes sure
// the database is reachable.
func Open(cfg *config.Config) (*sql.DB, error) {
	dialect, err := matricula.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.DSN
	if dialect == matricula.SQLite {
		dsn = sqliteDSN(dsn, cfg.Database.LockTimeout)
	}

	dbpool, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open does not connect, ping once to surface a bad DSN at startup
	if err := dbpool.PingContext(ctx); err != nil {
		_ = dbpool.Close()
		return nil, err
	}

	return dbpool, nil
}

// sqliteDSN appends the pragmas the repository relies on. Every transaction
// begins IMMEDIATE so it holds the writer lock from its first statement, and
// busy_timeout is the lock wait before SQLITE_BUSY.
func sqliteDSN(path string, lockTimeoutMillis int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + fmt.Sprintf(
		"_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_txlock=immediate",
		lockTimeoutMillis,
	)
}

func (r *Repository) DB() *sql.DB {
	return r.dbpool
}

func (r *Repository) Dialect() matricula.Dialect {
	return r.dialect
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders into SQLite's ?N form.
func (r *Repository) rebind(query string) string {
	if r.dialect == matricula.SQLite {
		return placeholderPattern.ReplaceAllString(query, "?$1")
	}
	return query
}

// withTx runs fn inside a transaction bounded by the transaction timeout.
// Any error from fn rolls everything back.
func (r *Repository) withTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return r.dialect.Contention(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return r.translate(err)
	}

	return nil
}
