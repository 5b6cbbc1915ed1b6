package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the bundled schema files of the configured dialect that
// have not been applied yet, each in its own transaction.
func (r *Repository) Migrate(ctx context.Context) error {
	dir := path.Join("migrations", string(r.dialect))

	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.dbpool.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var applied bool
		query := r.rebind(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`)
		if err := r.dbpool.QueryRowContext(ctx, query, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		if err := r.applyMigration(ctx, file, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}

func (r *Repository) applyMigration(ctx context.Context, name, content string) error {
	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}

	query := r.rebind(`INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`)
	if _, err := tx.ExecContext(ctx, query, name, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}
