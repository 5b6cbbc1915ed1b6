package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/matricula"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Handler) GetAllRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.repository.GetAllRoles(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "roles obtenidos", roles)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=50"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	role := &domain.Role{Name: req.Name}
	if err := h.repository.CreateRole(r.Context(), role); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRoleName):
			h.errorResponse(w, r, "el rol ya existe")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "rol creado", role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.idParam(w, r)
	if !ok {
		return
	}

	if _, err := h.repository.GetRoleByID(r.Context(), roleID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "el rol no existe")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if err := h.repository.DeleteRole(r.Context(), roleID); err != nil {
		switch {
		case errors.Is(err, repository.ErrRoleInUse):
			h.errorResponse(w, r, "el rol está asignado a usuarios")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "rol eliminado", nil)
}

// PreviewMatricula shows the matricula the next registration with the given
// role would most likely get. It reserves nothing.
func (h *Handler) PreviewMatricula(w http.ResponseWriter, r *http.Request) {
	roleName := r.URL.Query().Get("role")
	if roleName == "" {
		h.errorResponse(w, r, "falta el parámetro role")
		return
	}

	next, err := h.repository.PreviewMatricula(r.Context(), roleName)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoleNotFound):
			h.errorResponse(w, r, "rol inválido")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "matrícula sugerida", map[string]string{
		"role":      roleName,
		"prefix":    matricula.PrefixForRole(roleName),
		"matricula": next,
	})
}
