package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const bookingColumns = `id, time_slot_id, student_id, enrollment_id, status, notes, teacher_confirmed_complete,
        student_confirmed_complete, cancelled_at, completed_at, created_at, updated_at`

const bookingDetailSelect = `SELECT b.id, b.time_slot_id, b.student_id, b.enrollment_id, b.status, b.notes,
        b.teacher_confirmed_complete, b.student_confirmed_complete, b.cancelled_at, b.completed_at, b.created_at, b.updated_at,
        s.catalog_entry_id, c.title AS entry_title, c.teacher_id, s.start_time, s.end_time,
        COALESCE(u.full_name, '') AS student_name
        FROM bookings b
        JOIN time_slots s ON s.id = b.time_slot_id
        JOIN catalog_entries c ON c.id = s.catalog_entry_id
        LEFT JOIN users u ON u.id = b.student_id`

// BookingRepository handles persistence of bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FindDetailByID returns a booking with its slot and entry context.
func (r *BookingRepository) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	var detail models.BookingDetail
	if err := executor(ctx, r.db).GetContext(ctx, &detail, bookingDetailSelect+" WHERE b.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockByID returns the booking holding a row lock.
func (r *BookingRepository) LockByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := executor(ctx, r.db).GetContext(ctx, &booking, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// LockBySlotAndStudent returns the student's booking row for a slot, locked.
func (r *BookingRepository) LockBySlotAndStudent(ctx context.Context, slotID, studentID string) (*models.Booking, error) {
	const query = "SELECT " + bookingColumns + " FROM bookings WHERE time_slot_id = $1 AND student_id = $2 FOR UPDATE"
	var booking models.Booking
	if err := executor(ctx, r.db).GetContext(ctx, &booking, query, slotID, studentID); err != nil {
		return nil, err
	}
	return &booking, nil
}

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	const query = `INSERT INTO bookings (id, time_slot_id, student_id, enrollment_id, status, notes, teacher_confirmed_complete,
        student_confirmed_complete, cancelled_at, completed_at, created_at, updated_at)
        VALUES (:id, :time_slot_id, :student_id, :enrollment_id, :status, :notes, :teacher_confirmed_complete,
        :student_confirmed_complete, :cancelled_at, :completed_at, :created_at, :updated_at)`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// Update persists the booking's mutable state.
func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bookings SET enrollment_id = :enrollment_id, status = :status, notes = :notes,
        teacher_confirmed_complete = :teacher_confirmed_complete, student_confirmed_complete = :student_confirmed_complete,
        cancelled_at = :cancelled_at, completed_at = :completed_at, updated_at = :updated_at
        WHERE id = :id`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

// ListByEnrollment returns every booking tied to an enrollment.
func (r *BookingRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := executor(ctx, r.db).SelectContext(ctx, &bookings,
		"SELECT "+bookingColumns+" FROM bookings WHERE enrollment_id = $1 ORDER BY created_at", enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment bookings: %w", err)
	}
	return bookings, nil
}

// ListByStudent returns a student's bookings, soonest session first.
func (r *BookingRepository) ListByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	var bookings []models.BookingDetail
	if err := executor(ctx, r.db).SelectContext(ctx, &bookings,
		bookingDetailSelect+" WHERE b.student_id = $1 ORDER BY s.start_time ASC", studentID); err != nil {
		return nil, fmt.Errorf("list student bookings: %w", err)
	}
	return bookings, nil
}

// ListByEntry returns all bookings across an entry's slots.
func (r *BookingRepository) ListByEntry(ctx context.Context, entryID string) ([]models.BookingDetail, error) {
	var bookings []models.BookingDetail
	if err := executor(ctx, r.db).SelectContext(ctx, &bookings,
		bookingDetailSelect+" WHERE s.catalog_entry_id = $1 ORDER BY s.start_time ASC, b.created_at ASC", entryID); err != nil {
		return nil, fmt.Errorf("list entry bookings: %w", err)
	}
	return bookings, nil
}
