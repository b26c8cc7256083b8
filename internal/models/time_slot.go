package models

import "time"

// TimeSlot is a bookable calendar window for a catalog entry.
type TimeSlot struct {
	ID             string    `db:"id" json:"id"`
	CatalogEntryID string    `db:"catalog_entry_id" json:"catalog_entry_id"`
	StartTime      time.Time `db:"start_time" json:"start_time"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	MaxStudents    int       `db:"max_students" json:"max_students"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TimeSlotAvailability decorates a slot with its live booking count.
type TimeSlotAvailability struct {
	TimeSlot
	ActiveBookings int `db:"active_bookings" json:"active_bookings"`
}

// AvailableSpots is max_students minus CONFIRMED/PENDING bookings, floored at zero.
func (s TimeSlotAvailability) AvailableSpots() int {
	spots := s.MaxStudents - s.ActiveBookings
	if spots < 0 {
		return 0
	}
	return spots
}

// IsFullyBooked reports whether no spots remain.
func (s TimeSlotAvailability) IsFullyBooked() bool {
	return s.AvailableSpots() == 0
}

// Bookable reports whether a new booking could be placed at now.
func (s TimeSlotAvailability) Bookable(now time.Time) bool {
	return s.IsActive && s.StartTime.After(now) && !s.IsFullyBooked()
}

// ScheduleSlot is one slot of a teacher's schedule with its bookings.
type ScheduleSlot struct {
	TimeSlotAvailability
	AvailableSpots int             `json:"available_spots"`
	Bookings       []BookingDetail `json:"bookings"`
}

// TeacherSchedule splits a catalog entry's slots around the current time.
type TeacherSchedule struct {
	CatalogEntryID string         `json:"catalog_entry_id"`
	Upcoming       []ScheduleSlot `json:"upcoming"`
	Past           []ScheduleSlot `json:"past"`
}
