package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

func (r *Repository) getRoleByName(ctx context.Context, q matricula.Querier, name string) (*domain.Role, error) {
	query := r.rebind(`SELECT id, name, created_at FROM roles WHERE name = $1`)

	role := &domain.Role{}
	if err := q.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
		return nil, err
	}
	return role, nil
}

func (r *Repository) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return r.getRoleByName(ctx, r.dbpool, name)
}

func (r *Repository) GetRoleByID(ctx context.Context, id int64) (*domain.Role, error) {
	query := r.rebind(`SELECT id, name, created_at FROM roles WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	role := &domain.Role{}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
		return nil, err
	}
	return role, nil
}

func (r *Repository) GetAllRoles(ctx context.Context) ([]*domain.Role, error) {
	query := `SELECT id, name, created_at FROM roles ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*domain.Role, 0)
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return roles, nil
}

func (r *Repository) CreateRole(ctx context.Context, role *domain.Role) error {
	query := r.rebind(`INSERT INTO roles (name, created_at) VALUES ($1, $2) RETURNING id`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	role.CreatedAt = time.Now().UTC()
	if err := r.dbpool.QueryRowContext(ctx, query, role.Name, role.CreatedAt).Scan(&role.ID); err != nil {
		return r.translate(err)
	}

	return nil
}

// DeleteRole removes a role nobody holds. ErrRoleInUse is returned otherwise.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var inUse bool
		query := r.rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE role_id = $1)`)
		if err := tx.QueryRowContext(ctx, query, id).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return ErrRoleInUse
		}

		query = r.rebind(`DELETE FROM roles WHERE id = $1`)
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			if isForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return r.translate(err)
		}

		return nil
	})
}
