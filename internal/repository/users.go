package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

const userColumns = `
	u.id, u.matricula, u.full_name, u.email, u.password_hash, u.role_id, r.name, u.is_active, u.created_at, u.version
`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	user := &domain.User{}
	dst := []any{&user.ID, &user.Matricula, &user.FullName, &user.Email, &user.PasswordHash, &user.RoleID, &user.Role, &user.IsActive, &user.CreatedAt, &user.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := r.rebind(`SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE ` + where)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanUser(r.dbpool.QueryRowContext(ctx, query, arg))
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getUser(ctx, `u.id = $1`, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `u.email = $1`, email)
}

func (r *Repository) GetUserByMatricula(ctx context.Context, m string) (*domain.User, error) {
	return r.getUser(ctx, `u.matricula = $1`, m)
}

// GetAllUsers lists users ordered by matricula. A non-empty roleName keeps
// only the users holding that role.
func (r *Repository) GetAllUsers(ctx context.Context, roleName string) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id`
	args := []any{}
	if roleName != "" {
		query += ` WHERE r.name = $1`
		args = append(args, roleName)
	}
	query += ` ORDER BY u.matricula`

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// RegisterUser creates user with the role named roleName and assigns it the
// next matricula of that role's namespace. Role lookup, allocation and insert
// share one transaction, so a failure anywhere leaves nothing behind and the
// namespace stays locked until the row is committed.
func (r *Repository) RegisterUser(ctx context.Context, user *domain.User, roleName string) error {
	return r.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		role, err := r.getRoleByName(ctx, tx, roleName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRoleNotFound
			}
			return r.translate(err)
		}

		m, err := r.allocator.Allocate(ctx, tx, matricula.PrefixForRole(role.Name))
		if err != nil {
			return err
		}

		user.Matricula = m
		user.RoleID = role.ID
		user.Role = role.Name
		user.IsActive = true
		user.CreatedAt = time.Now().UTC()
		user.Version = 1

		query := r.rebind(`
			INSERT INTO users (matricula, full_name, email, password_hash, role_id, is_active, created_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`)
		args := []any{user.Matricula, user.FullName, user.Email, user.PasswordHash, user.RoleID, user.IsActive, user.CreatedAt, user.Version}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&user.ID); err != nil {
			return r.translate(err)
		}

		return nil
	})
}

// PreviewMatricula returns the matricula the next user with roleName would
// most likely receive. Nothing is locked or reserved.
func (r *Repository) PreviewMatricula(ctx context.Context, roleName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	role, err := r.getRoleByName(ctx, r.dbpool, roleName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRoleNotFound
		}
		return "", err
	}

	return r.allocator.Preview(ctx, r.dbpool, matricula.PrefixForRole(role.Name))
}

// UpdateUser saves the mutable fields of user. Matricula and role are fixed at
// registration and never written here.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	query := r.rebind(`
		UPDATE users
		SET
			full_name = $1,
			email = $2,
			password_hash = $3,
			is_active = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
		RETURNING version
	`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{user.FullName, user.Email, user.PasswordHash, user.IsActive, user.ID, user.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&user.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEditConflict
		}
		return r.translate(err)
	}

	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	query := r.rebind(`DELETE FROM users WHERE id = $1`)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return r.translate(err)
	}

	return nil
}
