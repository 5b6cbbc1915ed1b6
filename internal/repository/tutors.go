package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

// GetAllTutors returns every user in the tutor namespace together with the
// subjects they teach.
func (r *Repository) GetAllTutors(ctx context.Context) ([]*domain.Tutor, error) {
	return r.getTutors(ctx, 0)
}

func (r *Repository) GetTutorByID(ctx context.Context, id int64) (*domain.Tutor, error) {
	tutors, err := r.getTutors(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(tutors) == 0 {
		return nil, sql.ErrNoRows
	}
	return tutors[0], nil
}

// getTutors loads tutors and their subjects in one query; id 0 loads all.
func (r *Repository) getTutors(ctx context.Context, id int64) ([]*domain.Tutor, error) {
	query := `
		SELECT ` + userColumns + `, s.id, s.name, s.description, s.created_at, s.version
		FROM users u
		JOIN roles r ON r.id = u.role_id
		LEFT JOIN tutor_subjects ts ON ts.tutor_id = u.id
		LEFT JOIN subjects s ON s.id = ts.subject_id
		WHERE substr(u.matricula, 1, 1) = $1
	`
	args := []any{matricula.PrefixTutor}
	if id != 0 {
		query += ` AND u.id = $2`
		args = append(args, id)
	}
	query += ` ORDER BY u.matricula, s.name`

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tutors := make([]*domain.Tutor, 0)
	byID := make(map[int64]*domain.Tutor)

	for rows.Next() {
		var (
			t                       domain.Tutor
			subjectID               sql.NullInt64
			subjectName, subjectDsc sql.NullString
			subjectCreatedAt        sql.NullTime
			subjectVersion          sql.NullInt32
		)

		dst := []any{
			&t.ID, &t.Matricula, &t.FullName, &t.Email, &t.PasswordHash, &t.RoleID, &t.Role, &t.IsActive, &t.CreatedAt, &t.Version,
			&subjectID, &subjectName, &subjectDsc, &subjectCreatedAt, &subjectVersion,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		tutor, exists := byID[t.ID]
		if !exists {
			// first row of this tutor
			t.Subjects = make([]domain.Subject, 0)
			tutor = &t
			byID[t.ID] = tutor
			tutors = append(tutors, tutor)
		}

		// a tutor without subjects comes back with a NULL subject
		if !subjectID.Valid {
			continue
		}

		tutor.Subjects = append(tutor.Subjects, domain.Subject{
			ID:          subjectID.Int64,
			Name:        subjectName.String,
			Description: subjectDsc.String,
			CreatedAt:   subjectCreatedAt.Time,
			Version:     subjectVersion.Int32,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tutors, nil
}

// SetTutorSubjects replaces the subjects a tutor teaches.
func (r *Repository) SetTutorSubjects(ctx context.Context, tutorID int64, subjectIDs []int64) error {
	return r.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query := r.rebind(`DELETE FROM tutor_subjects WHERE tutor_id = $1`)
		if _, err := tx.ExecContext(ctx, query, tutorID); err != nil {
			return r.translate(err)
		}

		query = r.rebind(`INSERT INTO tutor_subjects (tutor_id, subject_id) VALUES ($1, $2)`)
		for _, subjectID := range subjectIDs {
			if _, err := tx.ExecContext(ctx, query, tutorID, subjectID); err != nil {
				return r.translate(err)
			}
		}

		return nil
	})
}

func (r *Repository) TutorTeaches(ctx context.Context, tutorID, subjectID int64) (bool, error) {
	query := r.rebind(`SELECT EXISTS (SELECT 1 FROM tutor_subjects WHERE tutor_id = $1 AND subject_id = $2)`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	var teaches bool
	if err := r.dbpool.QueryRowContext(ctx, query, tutorID, subjectID).Scan(&teaches); err != nil {
		return false, err
	}

	return teaches, nil
}
