package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/service"
	"github.com/noah-isme/skillswap-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, studentID, slotID, notes string) (*models.Booking, error)
	Cancel(ctx context.Context, studentID, bookingID string) (*models.Booking, error)
	MarkTeacherComplete(ctx context.Context, teacherID, bookingID string) (*service.CompletionResult, error)
	ConfirmStudentComplete(ctx context.Context, studentID, bookingID string) (*service.CompletionResult, error)
	MarkNoShow(ctx context.Context, teacherID, bookingID string) (*service.CompletionResult, error)
	ListMine(ctx context.Context, studentID string) (*service.MyBookings, error)
}

// BookingHandler exposes the booking lifecycle.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler builds a BookingHandler.
func NewBookingHandler(svc bookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Book godoc
// @Summary Book a seat in a slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.BookSlotRequest false "Booking notes"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id}/bookings [post]
func (h *BookingHandler) Book(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid booking payload"))
		return
	}
	booking, err := h.service.Book(c.Request.Context(), claims.UserID, c.Param("id"), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Mine godoc
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bookings/me [get]
func (h *BookingHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	bookings, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Cancel godoc
// @Summary Cancel an upcoming booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	booking, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// TeacherComplete godoc
// @Summary Teacher marks a session as delivered
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/teacher-complete [post]
func (h *BookingHandler) TeacherComplete(c *gin.Context) {
	h.complete(c, h.service.MarkTeacherComplete)
}

// StudentConfirm godoc
// @Summary Student confirms a session took place
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/student-confirm [post]
func (h *BookingHandler) StudentConfirm(c *gin.Context) {
	h.complete(c, h.service.ConfirmStudentComplete)
}

// NoShow godoc
// @Summary Teacher records that the student did not attend
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/no-show [post]
func (h *BookingHandler) NoShow(c *gin.Context) {
	h.complete(c, h.service.MarkNoShow)
}

func (h *BookingHandler) complete(c *gin.Context, action func(ctx context.Context, actorID, bookingID string) (*service.CompletionResult, error)) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	result, err := action(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
