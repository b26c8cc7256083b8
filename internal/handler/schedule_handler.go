package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/service"
	"github.com/noah-isme/skillswap-api/pkg/export"
	"github.com/noah-isme/skillswap-api/pkg/response"
)

type scheduleService interface {
	CreateSlot(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.CreateSlotRequest) (*models.TimeSlot, error)
	ListAvailable(ctx context.Context, entryID string) ([]models.ScheduleSlot, error)
	SetActive(ctx context.Context, actor *models.JWTClaims, slotID string, active bool) (*models.TimeSlotAvailability, error)
	DeleteSlot(ctx context.Context, actor *models.JWTClaims, slotID string) error
	TeacherSchedule(ctx context.Context, actor *models.JWTClaims, entryID string) (*models.TeacherSchedule, error)
	ExportSchedule(ctx context.Context, actor *models.JWTClaims, entryID string, format export.Format) (*service.ExportFile, error)
}

// ScheduleHandler manages time slots and the teacher roster.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler builds a ScheduleHandler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// ListAvailable godoc
// @Summary List bookable slots of a class
// @Tags Schedule
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Success 200 {object} response.Envelope
// @Router /catalog/{id}/slots [get]
func (h *ScheduleHandler) ListAvailable(c *gin.Context) {
	slots, err := h.service.ListAvailable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// CreateSlot godoc
// @Summary Add a time slot
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /catalog/{id}/slots [post]
func (h *ScheduleHandler) CreateSlot(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid time slot payload"))
		return
	}
	slot, err := h.service.CreateSlot(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// TeacherSchedule godoc
// @Summary Teacher view of every slot and booking
// @Tags Schedule
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Success 200 {object} response.Envelope
// @Router /catalog/{id}/schedule [get]
func (h *ScheduleHandler) TeacherSchedule(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	schedule, err := h.service.TeacherSchedule(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Export godoc
// @Summary Download the class roster
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Catalog entry ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /catalog/{id}/schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, bindError(err, "format must be csv or pdf"))
		return
	}
	file, err := h.service.ExportSchedule(c.Request.Context(), claims, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// UpdateSlot godoc
// @Summary Activate or deactivate a slot
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot state"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [patch]
func (h *ScheduleHandler) UpdateSlot(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		response.Error(c, bindError(err, "is_active is required"))
		return
	}
	slot, err := h.service.SetActive(c.Request.Context(), claims, c.Param("id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// DeleteSlot godoc
// @Summary Delete a slot without live bookings
// @Tags Schedule
// @Param id path string true "Time slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *ScheduleHandler) DeleteSlot(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.service.DeleteSlot(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
