package domain

import "time"

type Subject struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Version     int32     `json:"-"`
}

type Tutor struct {
	User
	Subjects []Subject `json:"subjects"`
}
