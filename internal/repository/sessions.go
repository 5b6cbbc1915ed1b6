package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
)

const sessionColumns = `id, tutor_id, student_id, subject_id, starts_at, ends_at, status, notes, created_at, version`

func scanSession(row interface{ Scan(dest ...any) error }) (*domain.Session, error) {
	s := &domain.Session{}
	dst := []any{&s.ID, &s.TutorID, &s.StudentID, &s.SubjectID, &s.StartsAt, &s.EndsAt, &s.Status, &s.Notes, &s.CreatedAt, &s.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) GetAllSessions(ctx context.Context, filter domain.SessionFilter) ([]*domain.Session, error) {
	conditions := []string{}
	args := []any{}
	if filter.TutorID != 0 {
		args = append(args, filter.TutorID)
		conditions = append(conditions, "tutor_id = $"+strconv.Itoa(len(args)))
	}
	if filter.StudentID != 0 {
		args = append(args, filter.StudentID)
		conditions = append(conditions, "student_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY starts_at, id`

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *Repository) GetSessionByID(ctx context.Context, id int64) (*domain.Session, error) {
	query := r.rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanSession(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) CreateSession(ctx context.Context, s *domain.Session) error {
	query := r.rebind(`
		INSERT INTO sessions (tutor_id, student_id, subject_id, starts_at, ends_at, status, notes, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if s.Status == "" {
		s.Status = domain.SessionScheduled
	}
	s.StartsAt = s.StartsAt.UTC()
	s.EndsAt = s.EndsAt.UTC()
	s.CreatedAt = time.Now().UTC()
	s.Version = 1

	args := []any{s.TutorID, s.StudentID, s.SubjectID, s.StartsAt, s.EndsAt, string(s.Status), s.Notes, s.CreatedAt, s.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&s.ID); err != nil {
		return r.translate(err)
	}

	return nil
}

func (r *Repository) UpdateSession(ctx context.Context, s *domain.Session) error {
	query := r.rebind(`
		UPDATE sessions
		SET starts_at = $1, ends_at = $2, status = $3, notes = $4, version = version + 1
		WHERE id = $5 AND version = $6
		RETURNING version
	`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	s.StartsAt = s.StartsAt.UTC()
	s.EndsAt = s.EndsAt.UTC()

	args := []any{s.StartsAt, s.EndsAt, string(s.Status), s.Notes, s.ID, s.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&s.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEditConflict
		}
		return r.translate(err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	query := r.rebind(`DELETE FROM sessions WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return r.translate(err)
	}

	return nil
}
