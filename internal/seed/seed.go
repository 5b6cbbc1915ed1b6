// Package seed loads initial data: the bootstrap administrator and rosters
// exported from the school's enrollment sheets.
package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Roster column headers. Subjects is optional and only read for tutors.
const (
	ColumnFullName = "nombre"
	ColumnEmail    = "correo"
	ColumnRole     = "rol"
	ColumnSubjects = "materias"
)

// EnsureInitialAdmin registers the configured administrator unless an
// account with its email already exists. It reports whether one was created.
func EnsureInitialAdmin(ctx context.Context, r *repository.Repository, cfg *config.Config) (*domain.User, bool, error) {
	existing, err := r.GetUserByEmail(ctx, cfg.InitialAdmin.Email)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.InitialAdmin.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, err
	}

	admin := &domain.User{
		FullName:     cfg.InitialAdmin.FullName,
		Email:        cfg.InitialAdmin.Email,
		PasswordHash: string(passwordHash),
	}
	if err := r.RegisterUser(ctx, admin, domain.RoleAdmin); err != nil {
		// another instance won the race
		if errors.Is(err, repository.ErrDuplicateEmail) {
			existing, err := r.GetUserByEmail(ctx, cfg.InitialAdmin.Email)
			return existing, false, err
		}
		return nil, false, err
	}

	return admin, true, nil
}

// ImportResult counts what ImportRoster did.
type ImportResult struct {
	Created int
	Skipped int
	Failed  int
}

// ImportRoster registers every row of a CSV roster. Each row gets its
// matricula from the allocator of its role; rows whose email is already
// registered are skipped. All imported accounts share password.
func ImportRoster(ctx context.Context, r *repository.Repository, in io.Reader, password string) (ImportResult, error) {
	result := ImportResult{}

	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("read roster header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}
	for _, required := range []string{ColumnFullName, ColumnEmail, ColumnRole} {
		if !slices.Contains(headers, required) {
			return result, fmt.Errorf("roster is missing column %q", required)
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return result, err
	}

	subjects, err := subjectsByName(ctx, r)
	if err != nil {
		return result, err
	}

	line := 1
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return result, fmt.Errorf("read roster line %d: %w", line+1, err)
		}
		line++

		record := make(map[string]string, len(headers))
		for i, value := range row {
			if i < len(headers) {
				record[headers[i]] = strings.TrimSpace(value)
			}
		}

		if record[ColumnFullName] == "" || record[ColumnEmail] == "" {
			slog.Warn("roster row without name or email", "line", line)
			result.Failed++
			continue
		}

		user := &domain.User{
			FullName:     record[ColumnFullName],
			Email:        record[ColumnEmail],
			PasswordHash: string(passwordHash),
		}
		if err := r.RegisterUser(ctx, user, record[ColumnRole]); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicateEmail):
				result.Skipped++
			case errors.Is(err, repository.ErrRoleNotFound):
				slog.Warn("roster row with unknown role", "line", line, "role", record[ColumnRole])
				result.Failed++
			default:
				return result, fmt.Errorf("register roster line %d: %w", line, err)
			}
			continue
		}
		result.Created++
		slog.Info("user imported", "matricula", user.Matricula, "email", user.Email)

		if !user.IsTutor() || record[ColumnSubjects] == "" {
			continue
		}

		subjectIDs, err := ensureSubjects(ctx, r, subjects, strings.Split(record[ColumnSubjects], ";"))
		if err != nil {
			return result, err
		}
		if err := r.SetTutorSubjects(ctx, user.ID, subjectIDs); err != nil {
			return result, fmt.Errorf("assign subjects on line %d: %w", line, err)
		}
	}

	return result, nil
}

func subjectsByName(ctx context.Context, r *repository.Repository) (map[string]int64, error) {
	all, err := r.GetAllSubjects(ctx)
	if err != nil {
		return nil, err
	}

	subjects := make(map[string]int64, len(all))
	for _, s := range all {
		subjects[s.Name] = s.ID
	}
	return subjects, nil
}

// ensureSubjects resolves subject names to ids, creating the missing ones.
func ensureSubjects(ctx context.Context, r *repository.Repository, known map[string]int64, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		id, ok := known[name]
		if !ok {
			s := &domain.Subject{Name: name}
			if err := r.CreateSubject(ctx, s); err != nil {
				return nil, fmt.Errorf("create subject %q: %w", name, err)
			}
			id = s.ID
			known[name] = id
		}

		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
