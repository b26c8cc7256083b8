package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
	"github.com/noah-isme/skillswap-api/pkg/response"
)

// maxWebhookBytes caps webhook bodies; provider events are far smaller.
const maxWebhookBytes = 64 << 10

type paymentService interface {
	CreateCheckout(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.CheckoutRequest) (*models.CheckoutResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Reconcile(ctx context.Context, actor *models.JWTClaims, entryID, sessionID string) (*models.ReconcileResult, error)
}

// PaymentHandler exposes checkout, the provider webhook and fallback reconciliation.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler builds a PaymentHandler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Checkout godoc
// @Summary Start a hosted checkout for a class
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Param payload body dto.CheckoutRequest false "Optional slot to book after payment"
// @Success 201 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /catalog/{id}/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid checkout payload"))
		return
	}
	result, err := h.service.CreateCheckout(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Reconcile godoc
// @Summary Settle a paid checkout when the webhook has not arrived
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Catalog entry ID"
// @Param session_id query string false "Checkout session ID from the success redirect"
// @Success 200 {object} response.Envelope
// @Router /catalog/{id}/payments/reconcile [post]
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid reconcile payload"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("session_id")
	}
	result, err := h.service.Reconcile(c.Request.Context(), claims, c.Param("id"), req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Webhook godoc
// @Summary Receive payment provider events
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Provider signature"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "webhook body too large"))
			return
		}
		response.Error(c, bindError(err, "unreadable webhook body"))
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"received": true}, nil)
}
