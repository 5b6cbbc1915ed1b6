package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/utils"
)

// GetAllSessions lists every session for admins and only their own for
// tutors and students.
func (h *Handler) GetAllSessions(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	filter := domain.SessionFilter{}
	switch {
	case myInfo.IsAdmin():
	case myInfo.IsTutor():
		filter.TutorID = myInfo.ID
	default:
		filter.StudentID = myInfo.ID
	}

	sessions, err := h.repository.GetAllSessions(r.Context(), filter)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "sesiones obtenidas", sessions)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TutorID   int64     `json:"tutorID" validate:"required,gt=0"`
		StudentID int64     `json:"studentID" validate:"required,gt=0"`
		SubjectID int64     `json:"subjectID" validate:"required,gt=0"`
		StartsAt  time.Time `json:"startsAt" validate:"required"`
		EndsAt    time.Time `json:"endsAt" validate:"required"`
		Notes     string    `json:"notes" validate:"max=1000"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)
	if !myInfo.IsAdmin() && myInfo.ID != req.TutorID {
		h.forbidden(w, r)
		return
	}

	s := &domain.Session{
		TutorID:   req.TutorID,
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Status:    domain.SessionScheduled,
		Notes:     req.Notes,
	}
	if err := utils.ValidateSessionTime(s); err != nil {
		h.badRequest(w, r, err)
		return
	}

	tutor, ok := h.participant(w, r, s.TutorID, "el tutor no existe")
	if !ok {
		return
	}
	student, ok := h.participant(w, r, s.StudentID, "el alumno no existe")
	if !ok {
		return
	}
	if err := utils.ValidateSessionParticipants(tutor, student); err != nil {
		h.badRequest(w, r, err)
		return
	}

	teaches, err := h.repository.TutorTeaches(r.Context(), s.TutorID, s.SubjectID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if !teaches {
		h.errorResponse(w, r, "el tutor no imparte esa materia")
		return
	}

	if err := h.repository.CreateSession(r.Context(), s); err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidReference):
			h.errorResponse(w, r, "la materia no existe")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "sesión creada", s)
}

func (h *Handler) participant(w http.ResponseWriter, r *http.Request, id int64, notFound string) (*domain.User, bool) {
	user, err := h.repository.GetUserByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, notFound)
		default:
			h.internalServerError(w, r, err)
		}
		return nil, false
	}
	return user, true
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := r.Context().Value(SessionCtx).(*domain.Session)
	h.successResponse(w, r, "sesión obtenida", s)
}

// UpdateSession lets admins and the session's tutor reschedule, close or
// annotate a session. Students can only read.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartsAt *time.Time `json:"startsAt"`
		EndsAt   *time.Time `json:"endsAt"`
		Status   *string    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
		Notes    *string    `json:"notes" validate:"omitempty,max=1000"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)
	s := r.Context().Value(SessionCtx).(*domain.Session)
	if !myInfo.IsAdmin() && myInfo.ID != s.TutorID {
		h.forbidden(w, r)
		return
	}

	if req.StartsAt != nil {
		s.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		s.EndsAt = *req.EndsAt
	}
	if req.Status != nil {
		s.Status = domain.SessionStatus(*req.Status)
	}
	if req.Notes != nil {
		s.Notes = *req.Notes
	}

	if err := utils.ValidateSessionTime(s); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateSessionStatus(s.Status); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.UpdateSession(r.Context(), s); err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, "no se pudo actualizar la sesión, inténtalo de nuevo")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "sesión actualizada", s)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s := r.Context().Value(SessionCtx).(*domain.Session)

	if err := h.repository.DeleteSession(r.Context(), s.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "sesión eliminada", nil)
}
