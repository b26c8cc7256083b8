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

type catalogRepository interface {
	List(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogEntry, int, error)
	FindByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	LockByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	Create(ctx context.Context, entry *models.CatalogEntry) error
	Update(ctx context.Context, entry *models.CatalogEntry) error
	References(ctx context.Context, id string) (models.CatalogReferences, error)
	Delete(ctx context.Context, id string) error
}

// CatalogService manages catalog entries.
type CatalogService struct {
	tx           txRunner
	repo         catalogRepository
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
	currency     string
	isForeignKey func(error) bool
}

// NewCatalogService constructs a CatalogService. isFK classifies foreign key violations on delete.
func NewCatalogService(tx txRunner, repo catalogRepository, cache *CacheService, currency string, isFK func(error) bool, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "usd"
	}
	if isFK == nil {
		isFK = func(error) bool { return false }
	}
	return &CatalogService{tx: tx, repo: repo, cache: cache, validator: validate, logger: logger, currency: currency, isForeignKey: isFK}
}

// List returns published entries matching the filter.
func (s *CatalogService) List(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogEntry, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.Search = strings.TrimSpace(filter.Search)
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list catalog entries")
	}
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an entry, served from cache when possible. Drafts are visible only to their owner and admins.
func (s *CatalogService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CatalogEntry, error) {
	var cached models.CatalogEntry
	value, err := s.cache.Remember(ctx, catalogEntryKey(id), &cached, func() (interface{}, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, lookupError(err, "catalog entry not found", "failed to load catalog entry")
	}
	entry := value.(*models.CatalogEntry)
	if !entry.IsPublished && (actor == nil || (!entry.OwnedBy(actor.UserID) && !actor.IsAdmin())) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "catalog entry not found")
	}
	return entry, nil
}

// Create adds an entry taught by the actor. Only admins may publish at creation time.
func (s *CatalogService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateCatalogEntryRequest) (*models.CatalogEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid catalog entry payload")
	}
	entry := &models.CatalogEntry{
		TeacherID:       actor.UserID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		PriceCents:      req.PriceCents,
		Currency:        strings.ToLower(req.Currency),
		DurationMinutes: req.DurationMinutes,
		Difficulty:      req.Difficulty,
		IsTradeable:     req.IsTradeable,
		IsPublished:     req.IsPublished && actor.IsAdmin(),
	}
	if entry.Currency == "" {
		entry.Currency = s.currency
	}
	if entry.Difficulty == "" {
		entry.Difficulty = models.DifficultyBeginner
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, internalError(err, "failed to create catalog entry")
	}
	s.logger.Info("catalog entry created", zap.String("catalog_entry_id", entry.ID), zap.String("teacher_id", entry.TeacherID))
	return entry, nil
}

// Update applies partial changes. Owners edit content; publishing requires an admin.
func (s *CatalogService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateCatalogEntryRequest) (*models.CatalogEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid catalog entry payload")
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "catalog entry not found", "failed to load catalog entry")
	}
	if !entry.OwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the teacher or an admin can edit this class")
	}
	if req.Title != nil {
		entry.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		entry.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		entry.PriceCents = *req.PriceCents
	}
	if req.Currency != nil {
		entry.Currency = strings.ToLower(*req.Currency)
	}
	if req.DurationMinutes != nil {
		entry.DurationMinutes = *req.DurationMinutes
	}
	if req.Difficulty != nil {
		entry.Difficulty = *req.Difficulty
	}
	if req.IsTradeable != nil {
		entry.IsTradeable = *req.IsTradeable
	}
	if req.IsPublished != nil && *req.IsPublished != entry.IsPublished {
		// Teachers may unpublish their own class; publishing is an approval step.
		if *req.IsPublished && !actor.IsAdmin() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only an admin can publish a class")
		}
		entry.IsPublished = *req.IsPublished
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, internalError(err, "failed to update catalog entry")
	}
	_ = s.cache.Invalidate(ctx, catalogEntryKey(id))
	return entry, nil
}

// Delete removes an entry nobody depends on. Admin only.
func (s *CatalogService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only an admin can delete a class")
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockByID(ctx, id); err != nil {
			return lookupError(err, "catalog entry not found", "failed to load catalog entry")
		}
		refs, err := s.repo.References(ctx, id)
		if err != nil {
			return internalError(err, "failed to check catalog references")
		}
		if refs.Blocking() {
			return appErrors.Clone(appErrors.ErrConflict, "class still has active enrollments, bookings, trades or payments")
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			if s.isForeignKey(err) {
				return appErrors.Clone(appErrors.ErrConflict, "class has history that prevents deletion; unpublish it instead")
			}
			return internalError(err, "failed to delete catalog entry")
		}
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.cache.Invalidate(ctx, catalogEntryKey(id))
	s.logger.Info("catalog entry deleted", zap.String("catalog_entry_id", id), zap.String("actor_id", actor.UserID))
	return nil
}
