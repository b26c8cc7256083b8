package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogEntry, *models.Pagination, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CatalogEntry, error)
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateCatalogEntryRequest) (*models.CatalogEntry, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateCatalogEntryRequest) (*models.CatalogEntry, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

type reviewService interface {
	Submit(ctx context.Context, reviewerID, entryID string, req dto.ReviewRequest) (*models.CatalogEntry, error)
	List(ctx context.Context, entryID string) ([]models.Review, error)
}

// CatalogHandler exposes the class catalog and its reviews.
type CatalogHandler struct {
	catalog catalogService
	reviews reviewService
}

// NewCatalogHandler builds a CatalogHandler.
func NewCatalogHandler(catalog catalogService, reviews reviewService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, reviews: reviews}
}

// List godoc
// @Summary List published classes
// @Tags Catalog
// @Produce json
// @Param teacher_id query string false "Teacher filter"
// @Param difficulty query string false "BEGINNER, INTERMEDIATE or ADVANCED"
// @Param tradeable query bool false "Only classes open to trades"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) List(c *gin.Context) {
	filter := models.CatalogFilter{
		TeacherID:     c.Query("teacher_id"),
		Difficulty:    models.Difficulty(strings.ToUpper(c.Query("difficulty"))),
		TradeableOnly: queryBool(c, "tradeable"),
		Search:        c.Query("search"),
		Page:          queryInt(c, "page"),
		PageSize:      queryInt(c, "page_size"),
	}
	entries, pagination, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get a class
// @Tags Catalog
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /catalog/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	entry, err := h.catalog.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Create godoc
// @Summary Create a class taught by the caller
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateCatalogEntryRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Router /catalog [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateCatalogEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid catalog entry payload"))
		return
	}
	entry, err := h.catalog.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Update a class
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Param payload body dto.UpdateCatalogEntryRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /catalog/{id} [put]
func (h *CatalogHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateCatalogEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid catalog entry payload"))
		return
	}
	entry, err := h.catalog.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete an unused class
// @Tags Catalog
// @Param id path string true "Catalog entry ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /catalog/{id} [delete]
func (h *CatalogHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Review godoc
// @Summary Rate a class
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Param payload body dto.ReviewRequest true "Rating"
// @Success 201 {object} response.Envelope
// @Router /catalog/{id}/reviews [post]
func (h *CatalogHandler) Review(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid review payload"))
		return
	}
	entry, err := h.reviews.Submit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Reviews godoc
// @Summary List a class's reviews
// @Tags Catalog
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Success 200 {object} response.Envelope
// @Router /catalog/{id}/reviews [get]
func (h *CatalogHandler) Reviews(c *gin.Context) {
	reviews, err := h.reviews.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}
