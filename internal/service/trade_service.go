package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type tradeRepository interface {
	Create(ctx context.Context, offer *models.TradeOffer) error
	LockByID(ctx context.Context, id string) (*models.TradeOffer, error)
	FindPending(ctx context.Context, proposerID, offeredID, requestedID string, now time.Time) (*models.TradeOffer, error)
	List(ctx context.Context, filter models.TradeFilter) ([]models.TradeOffer, error)
	UpdateStatus(ctx context.Context, id string, status models.TradeStatus, decidedAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type tradeLedger interface {
	Active(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	Grant(ctx context.Context, userID, entryID string, via models.GrantedVia, purchaseID string) (*models.Enrollment, error)
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Notification kinds sent by the trade protocol.
const (
	NotifyTradeProposed  = "trade.proposed"
	NotifyTradeAccepted  = "trade.accepted"
	NotifyTradeDeclined  = "trade.declined"
	NotifyTradeCancelled = "trade.cancelled"
)

// TradePurchasePrefix marks enrollments granted by an accepted trade.
const TradePurchasePrefix = "trade_"

// TradeOffers is a user's trade inbox and outbox.
type TradeOffers struct {
	Received []models.TradeOffer `json:"received"`
	Sent     []models.TradeOffer `json:"sent"`
}

// TradeDecision is the result of accepting an offer.
type TradeDecision struct {
	Offer   *models.TradeOffer  `json:"offer"`
	Outcome models.TradeOutcome `json:"outcome"`
}

// TradeService runs the skill-swap protocol between two teachers.
type TradeService struct {
	tx          txRunner
	repo        tradeRepository
	catalog     catalogReader
	enrollments tradeLedger
	notifier    notifier
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	offerTTL    time.Duration
	now         Clock
}

// NewTradeService constructs a TradeService.
func NewTradeService(tx txRunner, repo tradeRepository, catalog catalogReader, enrollments tradeLedger, notifier notifier, offerTTL time.Duration, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if offerTTL <= 0 {
		offerTTL = 7 * 24 * time.Hour
	}
	return &TradeService{
		tx:          tx,
		repo:        repo,
		catalog:     catalog,
		enrollments: enrollments,
		notifier:    notifier,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		offerTTL:    offerTTL,
		now:         defaultClock,
	}
}

// Propose offers access to one of the proposer's entries in exchange for another teacher's.
// An identical pending offer is returned as-is with created=false.
func (s *TradeService) Propose(ctx context.Context, proposerID string, req dto.ProposeTradeRequest) (*models.TradeOffer, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, validationError(err, "invalid trade offer")
	}
	offered, err := s.catalog.FindByID(ctx, req.OfferedEntryID)
	if err != nil {
		return nil, false, lookupError(err, "offered class not found", "failed to load offered class")
	}
	if !offered.OwnedBy(proposerID) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you can only offer your own classes")
	}
	requested, err := s.catalog.FindByID(ctx, req.RequestedEntryID)
	if err != nil {
		return nil, false, lookupError(err, "requested class not found", "failed to load requested class")
	}
	if !requested.IsPublished {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "requested class not found")
	}
	if requested.OwnedBy(proposerID) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "you cannot trade with your own class")
	}
	if !offered.Tradeable() || !requested.Tradeable() {
		return nil, false, appErrors.Clone(appErrors.ErrConflict, "both classes must be published and open to trades")
	}

	now := s.now()
	existing, err := s.repo.FindPending(ctx, proposerID, offered.ID, requested.ID, now)
	if err == nil {
		s.logger.Info("identical trade offer already pending", zap.String("trade_offer_id", existing.ID))
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, internalError(err, "failed to check pending offers")
	}

	offer := &models.TradeOffer{
		ProposerID:       proposerID,
		ReceiverID:       requested.TeacherID,
		OfferedEntryID:   offered.ID,
		RequestedEntryID: requested.ID,
		Message:          strings.TrimSpace(req.Message),
		Status:           models.TradeStatusPending,
		ExpiresAt:        now.Add(s.offerTTL),
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, false, internalError(err, "failed to create trade offer")
	}
	s.logger.Info("trade offer proposed",
		zap.String("trade_offer_id", offer.ID),
		zap.String("proposer_id", proposerID),
		zap.String("receiver_id", offer.ReceiverID))
	s.notify(NotifyTradeProposed, proposerID, offer.ReceiverID,
		fmt.Sprintf("New trade offer: access to %q in exchange for %q.", offered.Title, requested.Title))
	return offer, true, nil
}

// Accept grants both parties access in one transaction. If either side already holds an
// active enrollment the offer is cancelled instead and nothing is granted.
func (s *TradeService) Accept(ctx context.Context, receiverID, offerID string) (*TradeDecision, error) {
	decision := &TradeDecision{}
	var requestedTitle string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		offer, err := s.lockPending(ctx, offerID, receiverID, false)
		if err != nil {
			return err
		}
		now := s.now()
		if offer.IsExpired(now) {
			return appErrors.Clone(appErrors.ErrConflict, "trade offer has expired")
		}
		offered, err := s.catalog.FindByID(ctx, offer.OfferedEntryID)
		if err != nil {
			return lookupError(err, "offered class not found", "failed to load offered class")
		}
		requested, err := s.catalog.FindByID(ctx, offer.RequestedEntryID)
		if err != nil {
			return lookupError(err, "requested class not found", "failed to load requested class")
		}
		if !offered.Tradeable() || !requested.Tradeable() {
			return appErrors.Clone(appErrors.ErrConflict, "one of the classes is no longer available for trade")
		}
		requestedTitle = requested.Title

		proposerActive, err := s.enrollments.Active(ctx, offer.ProposerID, offer.RequestedEntryID)
		if err != nil {
			return err
		}
		receiverActive, err := s.enrollments.Active(ctx, offer.ReceiverID, offer.OfferedEntryID)
		if err != nil {
			return err
		}
		if proposerActive != nil || receiverActive != nil {
			if err := s.decide(ctx, offer, models.TradeStatusCancelled, now); err != nil {
				return err
			}
			decision.Offer, decision.Outcome = offer, models.TradeOutcomeAlreadyEnrolled
			return nil
		}

		purchaseID := TradePurchasePrefix + offer.ID
		if _, err := s.enrollments.Grant(ctx, offer.ProposerID, offer.RequestedEntryID, models.GrantedViaTrade, purchaseID); err != nil {
			return err
		}
		if _, err := s.enrollments.Grant(ctx, offer.ReceiverID, offer.OfferedEntryID, models.GrantedViaTrade, purchaseID); err != nil {
			return err
		}
		if err := s.decide(ctx, offer, models.TradeStatusAccepted, now); err != nil {
			return err
		}
		decision.Offer, decision.Outcome = offer, models.TradeOutcomeAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	offer := decision.Offer
	s.metrics.TradeDecision(string(offer.Status))
	s.logger.Info("trade offer decided",
		zap.String("trade_offer_id", offer.ID),
		zap.String("status", string(offer.Status)),
		zap.String("outcome", string(decision.Outcome)))
	if decision.Outcome == models.TradeOutcomeAccepted {
		s.notify(NotifyTradeAccepted, receiverID, offer.ProposerID,
			fmt.Sprintf("Your trade offer was accepted. You now have access to %q.", requestedTitle))
	} else {
		s.notify(NotifyTradeCancelled, receiverID, offer.ProposerID,
			"Your trade offer was cancelled because one of you is already enrolled.")
	}
	return decision, nil
}

// Decline lets the receiver reject a pending offer.
func (s *TradeService) Decline(ctx context.Context, receiverID, offerID string) (*models.TradeOffer, error) {
	offer, err := s.close(ctx, offerID, receiverID, false, models.TradeStatusDeclined)
	if err != nil {
		return nil, err
	}
	s.notify(NotifyTradeDeclined, receiverID, offer.ProposerID, "Your trade offer was declined.")
	return offer, nil
}

// Cancel lets the proposer withdraw a pending offer.
func (s *TradeService) Cancel(ctx context.Context, proposerID, offerID string) (*models.TradeOffer, error) {
	offer, err := s.close(ctx, offerID, proposerID, true, models.TradeStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notify(NotifyTradeCancelled, proposerID, offer.ReceiverID, "A trade offer you received was withdrawn.")
	return offer, nil
}

// List returns the user's received and sent offers, newest first. Stale offers are expired
// first; declined and cancelled offers are hidden unless showAll is set.
func (s *TradeService) List(ctx context.Context, userID string, showAll bool) (*TradeOffers, error) {
	if n, err := s.repo.ExpireStale(ctx, s.now()); err != nil {
		s.logger.Warn("failed to expire stale trade offers", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired stale trade offers", zap.Int64("count", n))
	}
	offers, err := s.repo.List(ctx, models.TradeFilter{UserID: userID})
	if err != nil {
		return nil, internalError(err, "failed to list trade offers")
	}
	out := &TradeOffers{Received: []models.TradeOffer{}, Sent: []models.TradeOffer{}}
	for _, offer := range offers {
		if !showAll && (offer.Status == models.TradeStatusDeclined || offer.Status == models.TradeStatusCancelled) {
			continue
		}
		if offer.ReceiverID == userID {
			out.Received = append(out.Received, offer)
		} else {
			out.Sent = append(out.Sent, offer)
		}
	}
	return out, nil
}

func (s *TradeService) close(ctx context.Context, offerID, actorID string, asProposer bool, status models.TradeStatus) (*models.TradeOffer, error) {
	var offer *models.TradeOffer
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.lockPending(ctx, offerID, actorID, asProposer)
		if err != nil {
			return err
		}
		if err := s.decide(ctx, locked, status, s.now()); err != nil {
			return err
		}
		offer = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.TradeDecision(string(status))
	s.logger.Info("trade offer closed", zap.String("trade_offer_id", offer.ID), zap.String("status", string(status)))
	return offer, nil
}

// lockPending locks the offer and checks the actor is the expected party and the offer is open.
func (s *TradeService) lockPending(ctx context.Context, offerID, actorID string, asProposer bool) (*models.TradeOffer, error) {
	offer, err := s.repo.LockByID(ctx, offerID)
	if err != nil {
		return nil, lookupError(err, "trade offer not found", "failed to load trade offer")
	}
	if !offer.Involves(actorID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "trade offer not found")
	}
	if asProposer && offer.ProposerID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the proposer can cancel this offer")
	}
	if !asProposer && offer.ReceiverID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the receiver can respond to this offer")
	}
	if offer.Status != models.TradeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("trade offer is already %s", strings.ToLower(string(offer.Status))))
	}
	return offer, nil
}

func (s *TradeService) decide(ctx context.Context, offer *models.TradeOffer, status models.TradeStatus, at time.Time) error {
	if !offer.Status.CanTransition(status) {
		return appErrors.Clone(appErrors.ErrConflict, "trade offer can no longer change")
	}
	if err := s.repo.UpdateStatus(ctx, offer.ID, status, at); err != nil {
		return internalError(err, "failed to update trade offer")
	}
	offer.Status = status
	offer.DecidedAt = &at
	return nil
}

func (s *TradeService) notify(kind, senderID, recipientID, content string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.Background(), models.Notification{
		Kind:        kind,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
	})
}
