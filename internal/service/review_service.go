package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type reviewRepository interface {
	Upsert(ctx context.Context, review *models.Review) error
	ListByEntry(ctx context.Context, entryID string) ([]models.Review, error)
}

type ratingRefresher interface {
	FindByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	RefreshRating(ctx context.Context, id string) error
}

// ReviewService records ratings and keeps the entry aggregate current.
type ReviewService struct {
	tx        txRunner
	reviews   reviewRepository
	catalog   ratingRefresher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReviewService constructs a ReviewService.
func NewReviewService(tx txRunner, reviews reviewRepository, catalog ratingRefresher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{tx: tx, reviews: reviews, catalog: catalog, cache: cache, validator: validate, logger: logger}
}

// Submit creates or replaces the reviewer's rating and returns the refreshed entry.
func (s *ReviewService) Submit(ctx context.Context, reviewerID, entryID string, req dto.ReviewRequest) (*models.CatalogEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "rating must be between 1 and 5")
	}
	var entry *models.CatalogEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.catalog.FindByID(ctx, entryID)
		if err != nil {
			return lookupError(err, "catalog entry not found", "failed to load catalog entry")
		}
		if current.OwnedBy(reviewerID) {
			return appErrors.Clone(appErrors.ErrForbidden, "teachers cannot review their own class")
		}
		review := &models.Review{
			CatalogEntryID: entryID,
			ReviewerID:     reviewerID,
			Rating:         req.Rating,
			Comment:        strings.TrimSpace(req.Comment),
		}
		if err := s.reviews.Upsert(ctx, review); err != nil {
			return internalError(err, "failed to save review")
		}
		if err := s.catalog.RefreshRating(ctx, entryID); err != nil {
			return internalError(err, "failed to refresh rating")
		}
		entry, err = s.catalog.FindByID(ctx, entryID)
		if err != nil {
			return internalError(err, "failed to reload catalog entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = s.cache.Invalidate(ctx, catalogEntryKey(entryID))
	return entry, nil
}

// List returns an entry's reviews.
func (s *ReviewService) List(ctx context.Context, entryID string) ([]models.Review, error) {
	reviews, err := s.reviews.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, internalError(err, "failed to list reviews")
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, nil
}
