package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const slotAvailabilitySelect = `SELECT s.id, s.catalog_entry_id, s.start_time, s.end_time, s.max_students, s.is_active, s.notes, s.created_at,
        (SELECT COUNT(*) FROM bookings b WHERE b.time_slot_id = s.id AND b.status IN ('PENDING', 'CONFIRMED')) AS active_bookings
        FROM time_slots s`

// TimeSlotRepository handles persistence of bookable time slots.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// Create persists a new slot.
func (r *TimeSlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO time_slots (id, catalog_entry_id, start_time, end_time, max_students, is_active, notes, created_at)
        VALUES (:id, :catalog_entry_id, :start_time, :end_time, :max_students, :is_active, :notes, :created_at)`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// FindByID returns a slot with its live booking count.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlotAvailability, error) {
	var slot models.TimeSlotAvailability
	if err := executor(ctx, r.db).GetContext(ctx, &slot, slotAvailabilitySelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// LockByID locks the slot row so concurrent bookings serialise on it.
func (r *TimeSlotRepository) LockByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	const query = `SELECT id, catalog_entry_id, start_time, end_time, max_students, is_active, notes, created_at
        FROM time_slots WHERE id = $1 FOR UPDATE`
	var slot models.TimeSlot
	if err := executor(ctx, r.db).GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// CountActiveBookings returns the number of PENDING or CONFIRMED bookings for a slot.
func (r *TimeSlotRepository) CountActiveBookings(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM bookings WHERE time_slot_id = $1 AND status IN ('PENDING', 'CONFIRMED')`
	var count int
	if err := executor(ctx, r.db).GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return count, nil
}

// ListByEntry returns an entry's slots ordered by start time. When availableFrom is set only
// active, future, not fully booked slots starting after it are returned.
func (r *TimeSlotRepository) ListByEntry(ctx context.Context, entryID string, availableFrom *time.Time) ([]models.TimeSlotAvailability, error) {
	query := slotAvailabilitySelect + " WHERE s.catalog_entry_id = $1"
	args := []interface{}{entryID}
	if availableFrom != nil {
		query = "SELECT * FROM (" + query + " AND s.is_active = TRUE AND s.start_time > $2) avail WHERE avail.active_bookings < avail.max_students"
		args = append(args, *availableFrom)
		query += " ORDER BY start_time ASC"
	} else {
		query += " ORDER BY s.start_time ASC"
	}
	var slots []models.TimeSlotAvailability
	if err := executor(ctx, r.db).SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// SetActive toggles whether a slot accepts bookings.
func (r *TimeSlotRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, "UPDATE time_slots SET is_active = $2 WHERE id = $1", id, active); err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}
	return nil
}

// Delete removes a slot; historical bookings cascade.
func (r *TimeSlotRepository) Delete(ctx context.Context, id string) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, "DELETE FROM time_slots WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	return nil
}
