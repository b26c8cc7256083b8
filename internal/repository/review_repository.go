package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/skillswap-api/internal/models"
)

// ReviewRepository handles persistence of catalog reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Upsert stores the reviewer's rating, replacing any earlier review of the same entry.
func (r *ReviewRepository) Upsert(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	review.CreatedAt = now
	review.UpdatedAt = now
	const query = `INSERT INTO catalog_reviews (id, catalog_entry_id, reviewer_id, rating, comment, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (catalog_entry_id, reviewer_id)
        DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`
	if err := executor(ctx, r.db).GetContext(ctx, review, query,
		review.ID, review.CatalogEntryID, review.ReviewerID, review.Rating, review.Comment, now); err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

// ListByEntry returns reviews for an entry, newest first.
func (r *ReviewRepository) ListByEntry(ctx context.Context, entryID string) ([]models.Review, error) {
	const query = `SELECT id, catalog_entry_id, reviewer_id, rating, comment, created_at, updated_at
        FROM catalog_reviews WHERE catalog_entry_id = $1 ORDER BY updated_at DESC`
	var reviews []models.Review
	if err := executor(ctx, r.db).SelectContext(ctx, &reviews, query, entryID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
