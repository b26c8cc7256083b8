package dto

import "time"

// CreateSlotRequest defines a new bookable window.
type CreateSlotRequest struct {
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	MaxStudents int       `json:"max_students" validate:"required"`
	Notes       string    `json:"notes" validate:"max=1000"`
}

// UpdateSlotRequest toggles slot visibility.
type UpdateSlotRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// BookSlotRequest reserves a seat.
type BookSlotRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}
