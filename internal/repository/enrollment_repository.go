package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const enrollmentColumns = "id, user_id, catalog_entry_id, status, granted_via, purchase_id, created_at, updated_at"

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// LockByID returns an enrollment by its ID holding a row lock.
func (r *EnrollmentRepository) LockByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := executor(ctx, r.db).GetContext(ctx, &enrollment, "SELECT "+enrollmentColumns+" FROM enrollments WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByUserAndEntry returns the enrollment for a (user, entry) pair.
func (r *EnrollmentRepository) FindByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	const query = "SELECT " + enrollmentColumns + " FROM enrollments WHERE user_id = $1 AND catalog_entry_id = $2"
	var enrollment models.Enrollment
	if err := executor(ctx, r.db).GetContext(ctx, &enrollment, query, userID, entryID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByUserAndEntry returns the (user, entry) enrollment holding a row lock.
func (r *EnrollmentRepository) LockByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	const query = "SELECT " + enrollmentColumns + " FROM enrollments WHERE user_id = $1 AND catalog_entry_id = $2 FOR UPDATE"
	var enrollment models.Enrollment
	if err := executor(ctx, r.db).GetContext(ctx, &enrollment, query, userID, entryID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// InsertIfAbsent inserts the enrollment unless one already exists for the pair.
// It reports whether a row was written.
func (r *EnrollmentRepository) InsertIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, user_id, catalog_entry_id, status, granted_via, purchase_id, created_at, updated_at)
        VALUES (:id, :user_id, :catalog_entry_id, :status, :granted_via, :purchase_id, :created_at, :updated_at)
        ON CONFLICT ON CONSTRAINT enrollments_user_entry_key DO NOTHING`
	res, err := executor(ctx, r.db).NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
	return affected > 0, nil
}

// Update persists status, grant source and purchase reference.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = :status, granted_via = :granted_via, purchase_id = :purchase_id,
        updated_at = :updated_at WHERE id = :id`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// UpdateStatus changes only the status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// Delete removes an enrollment row; linked bookings keep their history with a NULL reference.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := executor(ctx, r.db).ExecContext(ctx, "DELETE FROM enrollments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// ListByPurchaseID returns enrollments granted by the given purchase reference.
func (r *EnrollmentRepository) ListByPurchaseID(ctx context.Context, purchaseID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := executor(ctx, r.db).SelectContext(ctx, &enrollments,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE purchase_id = $1", purchaseID); err != nil {
		return nil, fmt.Errorf("list enrollments by purchase: %w", err)
	}
	return enrollments, nil
}

// ListByUser returns a user's enrollments joined with catalog details.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentWithEntry, error) {
	const query = `SELECT e.id, e.user_id, e.catalog_entry_id, e.status, e.granted_via, e.purchase_id, e.created_at, e.updated_at,
        c.title AS entry_title, c.teacher_id
        FROM enrollments e JOIN catalog_entries c ON c.id = e.catalog_entry_id
        WHERE e.user_id = $1 ORDER BY e.created_at DESC`
	var enrollments []models.EnrollmentWithEntry
	if err := executor(ctx, r.db).SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}
