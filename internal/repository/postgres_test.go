package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

// openPostgresRepository connects to TEST_DATABASE_DSN and skips the test
// when it is not set. The database is wiped before use.
func openPostgresRepository(t *testing.T) *Repository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	cfg := &config.Config{}
	cfg.Database.Driver = string(matricula.Postgres)
	cfg.Database.DSN = dsn
	cfg.Database.ConnectTimeout = 5
	cfg.Database.QueryTimeout = 10
	cfg.Database.TransactionTimeout = 60
	cfg.Database.LockTimeout = 2000
	cfg.Database.MaxOpenConns = 60
	cfg.Database.MaxIdleConns = 10
	cfg.Database.MaxIdleTime = 60

	dbpool, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbpool.Close() })

	for _, table := range []string{"sessions", "tutor_subjects", "subjects", "users", "roles", "schema_migrations"} {
		if _, err := dbpool.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}

	repo, err := NewRepository(cfg, dbpool)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestPostgresRegisterUserConcurrent(t *testing.T) {
	repo := openPostgresRepository(t)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := newUser(fmt.Sprintf("pg%02d", i))
			err := repo.RegisterUser(context.Background(), user, domain.RoleStudent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[user.Matricula] = true
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d registrations failed, first: %v", len(errs), errs[0])
	}
	for i := 1; i <= n; i++ {
		if m := matricula.Format("A", int64(i)); !seen[m] {
			t.Fatalf("missing %s in %v", m, seen)
		}
	}
}

func TestPostgresPrefixesDoNotBlockEachOther(t *testing.T) {
	repo := openPostgresRepository(t)
	ctx := context.Background()

	// hold the student namespace open
	tx, err := repo.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	allocator := matricula.NewAllocator(matricula.Postgres, 2*time.Second)
	if _, err := allocator.Allocate(ctx, tx, matricula.PrefixStudent); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- repo.RegisterUser(ctx, newUser("tutor"), domain.RoleTutor)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("tutor registration: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("tutor registration waited on the student namespace lock")
	}

	// the same namespace gives up with ErrContention after the lock timeout
	err = repo.RegisterUser(ctx, newUser("alumno"), domain.RoleStudent)
	if !errors.Is(err, matricula.ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestPostgresUniqueConstraintNames(t *testing.T) {
	repo := openPostgresRepository(t)
	ctx := context.Background()

	user := newUser("dup")
	if err := repo.RegisterUser(ctx, user, domain.RoleStudent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := repo.RegisterUser(ctx, newUser("dup"), domain.RoleStudent); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := repo.GetUserByEmail(ctx, "nobody@tutorias.test"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestPostgresRegisterUserRanksOverflowingValuesAsZero(t *testing.T) {
	repo := openPostgresRepository(t)
	ctx := context.Background()

	student, err := repo.GetRoleByName(ctx, domain.RoleStudent)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	for i, m := range []string{"A001", "A99999999999999999999", "A9223372036854775807", "A-bad", "A002"} {
		query := `INSERT INTO users (matricula, full_name, email, password_hash, role_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := repo.DB().Exec(query, m, "legacy", fmt.Sprintf("legacy%d@tutorias.test", i), "hash", student.ID, time.Now().UTC()); err != nil {
			t.Fatalf("seed %s: %v", m, err)
		}
	}

	preview, err := repo.PreviewMatricula(ctx, domain.RoleStudent)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview != "A003" {
		t.Fatalf("preview got %s, want A003", preview)
	}

	user := newUser("overflow")
	if err := repo.RegisterUser(ctx, user, domain.RoleStudent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Matricula != "A003" {
		t.Fatalf("got %s, want A003", user.Matricula)
	}
}
