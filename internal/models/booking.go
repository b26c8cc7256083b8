package models

import "time"

// BookingStatus tracks one student's reservation of a time slot.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow},
	BookingStatusCancelled: {BookingStatusConfirmed},
}

// CanTransition reports whether moving from s to next is permitted.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsSeat reports whether bookings in this status count against slot capacity.
func (s BookingStatus) HoldsSeat() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Booking is a student's reservation of a seat in a time slot.
type Booking struct {
	ID                       string        `db:"id" json:"id"`
	TimeSlotID               string        `db:"time_slot_id" json:"time_slot_id"`
	StudentID                string        `db:"student_id" json:"student_id"`
	EnrollmentID             *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Status                   BookingStatus `db:"status" json:"status"`
	Notes                    string        `db:"notes" json:"notes"`
	TeacherConfirmedComplete bool          `db:"teacher_confirmed_complete" json:"teacher_confirmed_complete"`
	StudentConfirmedComplete bool          `db:"student_confirmed_complete" json:"student_confirmed_complete"`
	CancelledAt              *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt              *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt                time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time     `db:"updated_at" json:"updated_at"`
}

// MutuallyCompleted is true once both parties confirmed the session took place.
func (b *Booking) MutuallyCompleted() bool {
	return b != nil && b.Status == BookingStatusCompleted && b.TeacherConfirmedComplete && b.StudentConfirmedComplete
}

// BookingDetail joins a booking with its slot and entry for teacher or student views.
type BookingDetail struct {
	Booking
	CatalogEntryID string    `db:"catalog_entry_id" json:"catalog_entry_id"`
	EntryTitle     string    `db:"entry_title" json:"entry_title"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	StartTime      time.Time `db:"start_time" json:"start_time"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	StudentName    string    `db:"student_name" json:"student_name"`
}

// EnrollmentResolved applies the revocation rule to the bookings tied to one enrollment:
// at least one mutually completed session and every other booking cancelled or no-show.
func EnrollmentResolved(bookings []Booking) bool {
	if len(bookings) == 0 {
		return false
	}
	completed := false
	for i := range bookings {
		b := bookings[i]
		switch {
		case b.MutuallyCompleted():
			completed = true
		case b.Status == BookingStatusCancelled, b.Status == BookingStatusNoShow:
		default:
			return false
		}
	}
	return completed
}
