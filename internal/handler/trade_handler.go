package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/service"
	"github.com/noah-isme/skillswap-api/pkg/response"
)

type tradeService interface {
	Propose(ctx context.Context, proposerID string, req dto.ProposeTradeRequest) (*models.TradeOffer, bool, error)
	Accept(ctx context.Context, receiverID, offerID string) (*service.TradeDecision, error)
	Decline(ctx context.Context, receiverID, offerID string) (*models.TradeOffer, error)
	Cancel(ctx context.Context, proposerID, offerID string) (*models.TradeOffer, error)
	List(ctx context.Context, userID string, showAll bool) (*service.TradeOffers, error)
}

// TradeHandler exposes the skill-swap protocol.
type TradeHandler struct {
	service tradeService
}

// NewTradeHandler builds a TradeHandler.
func NewTradeHandler(svc tradeService) *TradeHandler {
	return &TradeHandler{service: svc}
}

// List godoc
// @Summary List received and sent trade offers
// @Tags Trades
// @Produce json
// @Param all query bool false "Include declined and cancelled offers"
// @Success 200 {object} response.Envelope
// @Router /trades [get]
func (h *TradeHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	offers, err := h.service.List(c.Request.Context(), claims.UserID, queryBool(c, "all"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offers, nil)
}

// Propose godoc
// @Summary Offer one of your classes in exchange for another
// @Tags Trades
// @Accept json
// @Produce json
// @Param payload body dto.ProposeTradeRequest true "Trade offer"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "An identical offer is already pending"
// @Router /trades [post]
func (h *TradeHandler) Propose(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ProposeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid trade offer"))
		return
	}
	offer, created, err := h.service.Propose(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.JSON(c, http.StatusOK, offer, nil, map[string]interface{}{"duplicate": true})
		return
	}
	response.Created(c, offer)
}

// Accept godoc
// @Summary Accept a trade offer
// @Tags Trades
// @Produce json
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Router /trades/{id}/accept [post]
func (h *TradeHandler) Accept(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	decision, err := h.service.Accept(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Decline godoc
// @Summary Decline a trade offer
// @Tags Trades
// @Produce json
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Router /trades/{id}/decline [post]
func (h *TradeHandler) Decline(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	offer, err := h.service.Decline(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}

// Cancel godoc
// @Summary Withdraw a trade offer you sent
// @Tags Trades
// @Produce json
// @Param id path string true "Trade offer ID"
// @Success 200 {object} response.Envelope
// @Router /trades/{id}/cancel [post]
func (h *TradeHandler) Cancel(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	offer, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}
