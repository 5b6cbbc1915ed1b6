package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
)

func (r *Repository) GetAllSubjects(ctx context.Context) ([]*domain.Subject, error) {
	query := `SELECT id, name, description, created_at, version FROM subjects ORDER BY name`

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]*domain.Subject, 0)
	for rows.Next() {
		s := &domain.Subject{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.Version); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subjects, nil
}

func (r *Repository) GetSubjectByID(ctx context.Context, id int64) (*domain.Subject, error) {
	query := r.rebind(`SELECT name, description, created_at, version FROM subjects WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	s := &domain.Subject{ID: id}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(&s.Name, &s.Description, &s.CreatedAt, &s.Version); err != nil {
		return nil, err
	}

	return s, nil
}

func (r *Repository) CreateSubject(ctx context.Context, s *domain.Subject) error {
	query := r.rebind(`
		INSERT INTO subjects (name, description, created_at, version)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	s.CreatedAt = time.Now().UTC()
	s.Version = 1
	if err := r.dbpool.QueryRowContext(ctx, query, s.Name, s.Description, s.CreatedAt, s.Version).Scan(&s.ID); err != nil {
		return r.translate(err)
	}

	return nil
}

func (r *Repository) UpdateSubject(ctx context.Context, s *domain.Subject) error {
	query := r.rebind(`
		UPDATE subjects
		SET name = $1, description = $2, version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING version
	`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if err := r.dbpool.QueryRowContext(ctx, query, s.Name, s.Description, s.ID, s.Version).Scan(&s.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEditConflict
		}
		return r.translate(err)
	}

	return nil
}

func (r *Repository) DeleteSubject(ctx context.Context, id int64) error {
	query := r.rebind(`DELETE FROM subjects WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return r.translate(err)
	}

	return nil
}
