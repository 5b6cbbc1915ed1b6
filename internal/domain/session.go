package domain

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

type Session struct {
	ID        int64         `json:"id"`
	TutorID   int64         `json:"tutorID"`
	StudentID int64         `json:"studentID"`
	SubjectID int64         `json:"subjectID"`
	StartsAt  time.Time     `json:"startsAt"`
	EndsAt    time.Time     `json:"endsAt"`
	Status    SessionStatus `json:"status"`
	Notes     string        `json:"notes"`
	CreatedAt time.Time     `json:"createdAt"`
	Version   int32         `json:"-"`
}

// SessionFilter narrows a session listing; zero fields match everything.
type SessionFilter struct {
	TutorID   int64
	StudentID int64
}
