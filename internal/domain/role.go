package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

// Display names of the roles created by the initial migration.
const (
	RoleStudent = "Alumno"
	RoleTutor   = "Tutor"
	RoleAdmin   = "Administrador"
)

type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Role) Prefix() string {
	return matricula.PrefixForRole(r.Name)
}
