package utils

import (
	"errors"

	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
)

func ValidateSessionTime(s *domain.Session) error {
	if s.StartsAt.IsZero() || s.EndsAt.IsZero() {
		return errors.New("la sesión debe tener hora de inicio y de fin")
	}

	if !s.EndsAt.After(s.StartsAt) {
		return errors.New("la hora de fin debe ser posterior a la hora de inicio")
	}

	return nil
}

func ValidateSessionStatus(status domain.SessionStatus) error {
	switch status {
	case domain.SessionScheduled, domain.SessionCompleted, domain.SessionCancelled:
		return nil
	default:
		return errors.New("estado de sesión inválido")
	}
}

// ValidateSessionParticipants checks that each side of a session holds an
// identifier in the right namespace and is still active.
func ValidateSessionParticipants(tutor, student *domain.User) error {
	if !tutor.IsTutor() {
		return errors.New("el asesor indicado no es tutor")
	}

	if !student.IsStudent() {
		return errors.New("el alumno indicado no es alumno")
	}

	if !tutor.IsActive || !student.IsActive {
		return errors.New("los participantes deben estar activos")
	}

	return nil
}
