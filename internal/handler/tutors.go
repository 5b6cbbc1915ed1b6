package handler

import (
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
)

func (h *Handler) GetAllTutors(w http.ResponseWriter, r *http.Request) {
	tutors, err := h.repository.GetAllTutors(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "tutores obtenidos", tutors)
}

func (h *Handler) GetTutor(w http.ResponseWriter, r *http.Request) {
	t := r.Context().Value(TutorCtx).(*domain.Tutor)
	h.successResponse(w, r, "tutor obtenido", t)
}

func (h *Handler) SetTutorSubjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectIDs []int64 `json:"subjectIDs" validate:"dive,gt=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	t := r.Context().Value(TutorCtx).(*domain.Tutor)

	// duplicates would trip the primary key
	seen := make(map[int64]bool, len(req.SubjectIDs))
	subjectIDs := make([]int64, 0, len(req.SubjectIDs))
	for _, id := range req.SubjectIDs {
		if !seen[id] {
			seen[id] = true
			subjectIDs = append(subjectIDs, id)
		}
	}

	if err := h.repository.SetTutorSubjects(r.Context(), t.ID, subjectIDs); err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidReference):
			h.errorResponse(w, r, "alguna de las materias no existe")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	updated, err := h.repository.GetTutorByID(r.Context(), t.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "materias del tutor actualizadas", updated)
}
