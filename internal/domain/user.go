package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
)

type User struct {
	ID           int64     `json:"id"`
	Matricula    string    `json:"matricula"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       int64     `json:"roleID"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}

// Prefix is the identifier namespace the user's role maps to.
func (u *User) Prefix() string {
	return matricula.PrefixForRole(u.Role)
}

func (u *User) IsAdmin() bool {
	return u.Prefix() == matricula.PrefixAdmin
}

func (u *User) IsTutor() bool {
	return u.Prefix() == matricula.PrefixTutor
}

func (u *User) IsStudent() bool {
	return u.Prefix() == matricula.PrefixStudent
}
