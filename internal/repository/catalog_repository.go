package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

const catalogColumns = `id, teacher_id, title, description, price_cents, currency, duration_minutes, difficulty,
        is_tradeable, is_published, avg_rating, reviews_count, created_at, updated_at`

// CatalogRepository handles persistence of catalog entries.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns catalog entries filtered by the provided criteria.
func (r *CatalogRepository) List(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogEntry, int, error) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeDrafts {
		conditions = append(conditions, "is_published = TRUE")
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Difficulty != "" {
		conditions = append(conditions, fmt.Sprintf("difficulty = $%d", len(args)+1))
		args = append(args, filter.Difficulty)
	}
	if filter.TradeableOnly {
		conditions = append(conditions, "is_tradeable = TRUE")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM catalog_entries%s ORDER BY created_at DESC LIMIT %d OFFSET %d", catalogColumns, clause, size, offset)
	var entries []models.CatalogEntry
	if err := executor(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list catalog entries: %w", err)
	}

	var total int
	if err := executor(ctx, r.db).GetContext(ctx, &total, "SELECT COUNT(*) FROM catalog_entries"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count catalog entries: %w", err)
	}
	return entries, total, nil
}

// FindByID returns a catalog entry by ID.
func (r *CatalogRepository) FindByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	query := "SELECT " + catalogColumns + " FROM catalog_entries WHERE id = $1"
	var entry models.CatalogEntry
	if err := executor(ctx, r.db).GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LockByID returns the entry with a row lock held until the surrounding transaction ends.
func (r *CatalogRepository) LockByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	query := "SELECT " + catalogColumns + " FROM catalog_entries WHERE id = $1 FOR UPDATE"
	var entry models.CatalogEntry
	if err := executor(ctx, r.db).GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create persists a new catalog entry.
func (r *CatalogRepository) Create(ctx context.Context, entry *models.CatalogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	const query = `INSERT INTO catalog_entries (id, teacher_id, title, description, price_cents, currency, duration_minutes,
        difficulty, is_tradeable, is_published, avg_rating, reviews_count, created_at, updated_at)
        VALUES (:id, :teacher_id, :title, :description, :price_cents, :currency, :duration_minutes,
        :difficulty, :is_tradeable, :is_published, :avg_rating, :reviews_count, :created_at, :updated_at)`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create catalog entry: %w", err)
	}
	return nil
}

// Update persists mutable catalog fields.
func (r *CatalogRepository) Update(ctx context.Context, entry *models.CatalogEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE catalog_entries SET title = :title, description = :description, price_cents = :price_cents,
        currency = :currency, duration_minutes = :duration_minutes, difficulty = :difficulty,
        is_tradeable = :is_tradeable, is_published = :is_published, updated_at = :updated_at
        WHERE id = :id`
	if _, err := executor(ctx, r.db).NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("update catalog entry: %w", err)
	}
	return nil
}

// References counts the live rows that block deleting an entry.
func (r *CatalogRepository) References(ctx context.Context, id string) (models.CatalogReferences, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM enrollments WHERE catalog_entry_id = $1 AND status IN ('ACTIVE', 'PENDING')) AS open_enrollments,
        (SELECT COUNT(*) FROM bookings b JOIN time_slots s ON s.id = b.time_slot_id
            WHERE s.catalog_entry_id = $1 AND b.status IN ('PENDING', 'CONFIRMED')) AS open_bookings,
        (SELECT COUNT(*) FROM trade_offers WHERE (offered_entry_id = $1 OR requested_entry_id = $1) AND status = 'PENDING') AS pending_trades,
        (SELECT COUNT(*) FROM payments WHERE catalog_entry_id = $1 AND status = 'OPEN') AS open_payments`
	var refs models.CatalogReferences
	if err := executor(ctx, r.db).GetContext(ctx, &refs, query, id); err != nil {
		return refs, fmt.Errorf("count catalog references: %w", err)
	}
	return refs, nil
}

// Delete removes an entry and its unbooked slots. Remaining history rows keep the
// RESTRICT foreign keys in force, surfacing as a foreign key violation.
func (r *CatalogRepository) Delete(ctx context.Context, id string) error {
	q := executor(ctx, r.db)
	const slots = `DELETE FROM time_slots s WHERE s.catalog_entry_id = $1
        AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.time_slot_id = s.id)`
	if _, err := q.ExecContext(ctx, slots, id); err != nil {
		return fmt.Errorf("delete catalog slots: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM catalog_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete catalog entry: %w", err)
	}
	return nil
}

// RefreshRating recomputes the denormalised rating aggregate from reviews.
func (r *CatalogRepository) RefreshRating(ctx context.Context, id string) error {
	const query = `UPDATE catalog_entries SET
        avg_rating = COALESCE((SELECT ROUND(AVG(rating)::numeric, 2) FROM catalog_reviews WHERE catalog_entry_id = $1), 0),
        reviews_count = (SELECT COUNT(*) FROM catalog_reviews WHERE catalog_entry_id = $1),
        updated_at = NOW()
        WHERE id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("refresh catalog rating: %w", err)
	}
	return nil
}
