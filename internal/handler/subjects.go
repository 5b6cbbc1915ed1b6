package handler

import (
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
)

func (h *Handler) GetAllSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.repository.GetAllSubjects(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "materias obtenidas", subjects)
}

func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name" validate:"required,max=100"`
		Description string `json:"description" validate:"max=500"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	s := &domain.Subject{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.repository.CreateSubject(r.Context(), s); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateSubjectName):
			h.errorResponse(w, r, "la materia ya existe")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "materia creada", s)
}

func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	s := r.Context().Value(SubjectCtx).(*domain.Subject)
	h.successResponse(w, r, "materia obtenida", s)
}

func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
		Description *string `json:"description" validate:"omitempty,max=500"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	s := r.Context().Value(SubjectCtx).(*domain.Subject)
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Description != nil {
		s.Description = *req.Description
	}

	if err := h.repository.UpdateSubject(r.Context(), s); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateSubjectName):
			h.errorResponse(w, r, "la materia ya existe")
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, "no se pudo actualizar la materia, inténtalo de nuevo")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "materia actualizada", s)
}

func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	s := r.Context().Value(SubjectCtx).(*domain.Subject)

	if err := h.repository.DeleteSubject(r.Context(), s.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidReference):
			h.errorResponse(w, r, "la materia tiene sesiones registradas")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "materia eliminada", nil)
}
