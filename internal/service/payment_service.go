package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

// CheckoutProvider is the hosted checkout backend.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	ListCheckoutSessions(ctx context.Context, createdAfter time.Time) ([]models.CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	LockBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	ListOpenByUserEntry(ctx context.Context, userID, entryID string, since time.Time) ([]models.Payment, error)
	MarkStatus(ctx context.Context, sessionID string, status models.PaymentStatus, paymentIntentID string) error
	MarkStatusByPurchase(ctx context.Context, purchaseID string, status models.PaymentStatus) (int64, error)
	ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]models.Payment, error)
}

type webhookEventStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type catalogReader interface {
	FindByID(ctx context.Context, id string) (*models.CatalogEntry, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type slotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlotAvailability, error)
}

type paymentLedger interface {
	Active(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	Get(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	Grant(ctx context.Context, userID, entryID string, via models.GrantedVia, purchaseID string) (*models.Enrollment, error)
	RefundByPurchase(ctx context.Context, purchaseID string) (int, error)
}

type slotBooker interface {
	BookOrKeep(ctx context.Context, studentID, slotID, notes string) (*models.Booking, bool, error)
}

// PaymentConfig tunes checkout and reconciliation.
type PaymentConfig struct {
	Currency        string
	PublicBaseURL   string
	ReconcileWindow time.Duration
	WebhookEventTTL time.Duration
}

// Settlement sources.
const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// PaymentService opens checkouts and settles completed ones. The webhook and the
// reconciliation fallback share a single settlement path.
type PaymentService struct {
	tx          txRunner
	provider    CheckoutProvider
	payments    paymentRepository
	events      webhookEventStore
	catalog     catalogReader
	users       userReader
	slots       slotReader
	enrollments paymentLedger
	bookings    slotBooker
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         PaymentConfig
	now         Clock
}

// PaymentDeps groups PaymentService collaborators.
type PaymentDeps struct {
	Tx          txRunner
	Provider    CheckoutProvider
	Payments    paymentRepository
	Events      webhookEventStore
	Catalog     catalogReader
	Users       userReader
	Slots       slotReader
	Enrollments paymentLedger
	Bookings    slotBooker
	Validator   *validator.Validate
	Metrics     *MetricsService
	Logger      *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(deps PaymentDeps, cfg PaymentConfig) *PaymentService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = 30 * time.Minute
	}
	if cfg.WebhookEventTTL <= 0 {
		cfg.WebhookEventTTL = 72 * time.Hour
	}
	return &PaymentService{
		tx:          deps.Tx,
		provider:    deps.Provider,
		payments:    deps.Payments,
		events:      deps.Events,
		catalog:     deps.Catalog,
		users:       deps.Users,
		slots:       deps.Slots,
		enrollments: deps.Enrollments,
		bookings:    deps.Bookings,
		validator:   deps.Validator,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         defaultClock,
	}
}

// CreateCheckout opens a hosted checkout for the entry and records it locally.
func (s *PaymentService) CreateCheckout(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.CheckoutRequest) (*models.CheckoutResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid checkout payload")
	}
	entry, err := s.catalog.FindByID(ctx, entryID)
	if err != nil {
		return nil, lookupError(err, "catalog entry not found", "failed to load catalog entry")
	}
	if !entry.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "catalog entry not found")
	}
	if entry.PriceCents <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "this class cannot be purchased")
	}
	if entry.OwnedBy(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you cannot purchase your own class")
	}
	active, err := s.enrollments.Active(ctx, actor.UserID, entryID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you are already enrolled in this class")
	}
	var slotID *string
	if req.TimeSlotID != "" {
		slot, err := s.slots.FindByID(ctx, req.TimeSlotID)
		if err != nil {
			return nil, lookupError(err, "time slot not found", "failed to load time slot")
		}
		if slot.CatalogEntryID != entryID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "time slot does not belong to this class")
		}
		slotID = &req.TimeSlotID
	}

	meta := models.CheckoutMetadata{
		CatalogEntryID: entryID,
		UserID:         actor.UserID,
		TimeSlotID:     req.TimeSlotID,
		BookingNotes:   req.BookingNotes,
	}
	currency := entry.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	session, err := s.provider.CreateCheckoutSession(ctx, models.CheckoutRequest{
		ProductName:       entry.Title,
		Description:       entry.Description,
		AmountCents:       entry.PriceCents,
		Currency:          currency,
		SuccessURL:        fmt.Sprintf("%s/classes/%s/checkout/success?session_id={CHECKOUT_SESSION_ID}", s.cfg.PublicBaseURL, entryID),
		CancelURL:         fmt.Sprintf("%s/classes/%s?checkout=cancelled", s.cfg.PublicBaseURL, entryID),
		CustomerEmail:     actor.Email,
		ClientReferenceID: actor.UserID,
		Metadata:          meta.ToMap(),
	})
	if err != nil {
		s.logger.Error("checkout session creation failed", zap.String("catalog_entry_id", entryID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrExternalProvider.Code, appErrors.ErrExternalProvider.Status, appErrors.ErrExternalProvider.Message)
	}

	payment := &models.Payment{
		SessionID:      session.ID,
		UserID:         actor.UserID,
		CatalogEntryID: entryID,
		TimeSlotID:     slotID,
		AmountCents:    entry.PriceCents,
		Currency:       currency,
		Status:         models.PaymentStatusOpen,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, internalError(err, "failed to record checkout session")
	}
	s.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("catalog_entry_id", entryID),
		zap.String("user_id", actor.UserID))
	return &models.CheckoutResult{
		SessionID:   session.ID,
		URL:         session.URL,
		PaymentID:   payment.ID,
		AmountCents: entry.PriceCents,
		Currency:    currency,
	}, nil
}

// HandleWebhook verifies and applies a provider event.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("webhook rejected", zap.Error(err))
		return validationError(err, "invalid webhook payload or signature")
	}
	logger := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	key := "payments:webhook:" + event.ID
	if seen, err := s.events.Exists(ctx, key); err == nil && seen {
		logger.Debug("webhook event already processed")
		s.metrics.WebhookEvent(event.Type, "duplicate")
		return nil
	}

	if err := s.applyEvent(ctx, event, logger); err != nil {
		s.metrics.WebhookEvent(event.Type, "error")
		return err
	}
	if _, err := s.events.SetIfAbsent(ctx, key, s.cfg.WebhookEventTTL); err != nil {
		logger.Warn("failed to remember webhook event", zap.Error(err))
	}
	s.metrics.WebhookEvent(event.Type, "ok")
	return nil
}

func (s *PaymentService) applyEvent(ctx context.Context, event *models.WebhookEvent, logger *zap.Logger) error {
	switch event.Type {
	case models.EventCheckoutSessionCompleted, models.EventCheckoutSessionAsyncSucceeded:
		if event.Session == nil {
			logger.Warn("checkout event without session")
			return nil
		}
		_, err := s.settle(ctx, event.Session, SourceWebhook)
		return err
	case models.EventCheckoutSessionExpired:
		if event.Session != nil {
			if err := s.payments.MarkStatus(ctx, event.Session.ID, models.PaymentStatusExpired, ""); err != nil {
				return internalError(err, "failed to expire payment")
			}
		}
		logger.Info("checkout session expired")
	case models.EventPaymentIntentSucceeded:
		logger.Info("payment intent succeeded", zap.String("payment_intent_id", event.PaymentIntentID))
	case models.EventPaymentIntentFailed:
		if _, err := s.payments.MarkStatusByPurchase(ctx, event.PaymentIntentID, models.PaymentStatusFailed); err != nil {
			return internalError(err, "failed to mark payment failed")
		}
		logger.Warn("payment intent failed",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.String("reason", event.FailureMessage))
	case models.EventChargeRefunded:
		if event.PaymentIntentID == "" {
			logger.Warn("refund event without payment intent")
			return nil
		}
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			purchaseIDs, err := s.refundPurchaseIDs(ctx, event.PaymentIntentID)
			if err != nil {
				return err
			}
			refunded := 0
			for _, purchaseID := range purchaseIDs {
				n, err := s.enrollments.RefundByPurchase(ctx, purchaseID)
				if err != nil {
					return err
				}
				refunded += n
			}
			if _, err := s.payments.MarkStatusByPurchase(ctx, event.PaymentIntentID, models.PaymentStatusRefunded); err != nil {
				return internalError(err, "failed to mark payment refunded")
			}
			logger.Info("charge refunded", zap.String("payment_intent_id", event.PaymentIntentID), zap.Int("enrollments", refunded))
			return nil
		})
		return err
	case models.EventChargeDisputeCreated:
		logger.Warn("charge dispute opened", zap.String("payment_intent_id", event.PaymentIntentID))
	default:
		logger.Debug("webhook event ignored")
	}
	return nil
}

// refundPurchaseIDs lists the purchase references a refunded payment intent may have been
// granted under. Sessions settled before their intent was known granted under the session id.
func (s *PaymentService) refundPurchaseIDs(ctx context.Context, paymentIntentID string) ([]string, error) {
	payments, err := s.payments.ListByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, internalError(err, "failed to load payments for refund")
	}
	ids := []string{paymentIntentID}
	for _, payment := range payments {
		if payment.SessionID != "" && payment.SessionID != paymentIntentID {
			ids = append(ids, payment.SessionID)
		}
	}
	return ids, nil
}

// Reconcile settles a paid checkout for the user and entry when the webhook has not arrived.
// With a session id that session is checked; otherwise recent sessions are searched.
func (s *PaymentService) Reconcile(ctx context.Context, actor *models.JWTClaims, entryID, sessionID string) (*models.ReconcileResult, error) {
	if sessionID != "" {
		session, err := s.provider.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrExternalProvider.Code, appErrors.ErrExternalProvider.Status, appErrors.ErrExternalProvider.Message)
		}
		if !sessionMatches(session, actor.UserID, entryID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "checkout session not found")
		}
		return s.settle(ctx, session, SourceReconcile)
	}

	active, err := s.enrollments.Active(ctx, actor.UserID, entryID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &models.ReconcileResult{Settled: true, Enrollment: active}, nil
	}

	since := s.now().Add(-s.cfg.ReconcileWindow)
	open, err := s.payments.ListOpenByUserEntry(ctx, actor.UserID, entryID, since)
	if err != nil {
		return nil, internalError(err, "failed to list pending payments")
	}
	for _, payment := range open {
		session, err := s.provider.GetCheckoutSession(ctx, payment.SessionID)
		if err != nil {
			s.logger.Warn("reconcile lookup failed", zap.String("session_id", payment.SessionID), zap.Error(err))
			continue
		}
		if session.Paid() && sessionMatches(session, actor.UserID, entryID) {
			return s.settle(ctx, session, SourceReconcile)
		}
	}

	sessions, err := s.provider.ListCheckoutSessions(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalProvider.Code, appErrors.ErrExternalProvider.Status, appErrors.ErrExternalProvider.Message)
	}
	for i := range sessions {
		session := &sessions[i]
		if session.Paid() && sessionMatches(session, actor.UserID, entryID) {
			return s.settle(ctx, session, SourceReconcile)
		}
	}
	return &models.ReconcileResult{Settled: false}, nil
}

func sessionMatches(session *models.CheckoutSession, userID, entryID string) bool {
	if session == nil {
		return false
	}
	return session.Metadata[models.MetadataUserID] == userID && session.Metadata[models.MetadataCatalogEntryID] == entryID
}

// settle applies a paid checkout: payment PAID, enrollment granted, optional booking placed.
// Malformed metadata is logged and dropped since redelivery cannot fix it.
func (s *PaymentService) settle(ctx context.Context, session *models.CheckoutSession, source string) (*models.ReconcileResult, error) {
	logger := s.logger.With(zap.String("session_id", session.ID), zap.String("source", source))
	if !session.Paid() {
		logger.Info("checkout session not paid yet", zap.String("payment_status", session.PaymentStatus))
		s.metrics.PaymentSettlement(source, "unpaid")
		return &models.ReconcileResult{Settled: false, SessionID: session.ID}, nil
	}
	meta, err := models.ParseCheckoutMetadata(session.Metadata)
	if err != nil {
		logger.Warn("dropping checkout with invalid metadata", zap.Error(err))
		s.metrics.PaymentSettlement(source, "dropped")
		return &models.ReconcileResult{Settled: false, SessionID: session.ID}, nil
	}
	if ok, err := s.referencesExist(ctx, meta); err != nil {
		return nil, err
	} else if !ok {
		logger.Warn("dropping checkout for unknown user or class",
			zap.String("user_id", meta.UserID),
			zap.String("catalog_entry_id", meta.CatalogEntryID))
		s.metrics.PaymentSettlement(source, "dropped")
		return &models.ReconcileResult{Settled: false, SessionID: session.ID}, nil
	}

	result := &models.ReconcileResult{SessionID: session.ID}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		replay, err := s.recordPaid(ctx, session, meta)
		if err != nil {
			return err
		}
		result.Booking = nil
		result.Replay = replay
		if replay {
			// Grant and booking belong to the first settlement; the enrollment may since have
			// been revoked or refunded and the booking cancelled.
			enrollment, err := s.enrollments.Get(ctx, meta.UserID, meta.CatalogEntryID)
			if err != nil {
				return err
			}
			result.Enrollment = enrollment
			return nil
		}
		enrollment, err := s.enrollments.Grant(ctx, meta.UserID, meta.CatalogEntryID, models.GrantedViaPurchase, session.PurchaseID())
		if err != nil {
			return err
		}
		result.Enrollment = enrollment
		if meta.TimeSlotID == "" || !enrollment.CanBookSessions() {
			return nil
		}
		booking, _, err := s.bookings.BookOrKeep(ctx, meta.UserID, meta.TimeSlotID, meta.BookingNotes)
		if err != nil {
			if isSlotUnavailable(err) {
				logger.Warn("slot no longer available after payment; enrollment kept",
					zap.String("time_slot_id", meta.TimeSlotID),
					zap.Error(err))
				return nil
			}
			return err
		}
		result.Booking = booking
		return nil
	})
	if err != nil {
		s.metrics.PaymentSettlement(source, "error")
		return nil, err
	}
	result.Settled = true
	outcome := "settled"
	if result.Replay {
		outcome = "replay"
	}
	s.metrics.PaymentSettlement(source, outcome)
	logger.Info("checkout settled",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("enrollment_status", string(result.Enrollment.Status)),
		zap.Bool("booked", result.Booking != nil),
		zap.Bool("replay", result.Replay))
	return result, nil
}

func (s *PaymentService) referencesExist(ctx context.Context, meta models.CheckoutMetadata) (bool, error) {
	if _, err := s.users.FindByID(ctx, meta.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(err, "failed to load user")
	}
	if _, err := s.catalog.FindByID(ctx, meta.CatalogEntryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(err, "failed to load catalog entry")
	}
	return true, nil
}

// recordPaid marks the session PAID and reports whether it had already been settled.
func (s *PaymentService) recordPaid(ctx context.Context, session *models.CheckoutSession, meta models.CheckoutMetadata) (bool, error) {
	replay := false
	existing, err := s.payments.LockBySessionID(ctx, session.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case models.PaymentStatusRefunded:
			return true, nil
		case models.PaymentStatusPaid:
			replay = true
		}
	case errors.Is(err, sql.ErrNoRows):
		payment := &models.Payment{
			SessionID:      session.ID,
			UserID:         meta.UserID,
			CatalogEntryID: meta.CatalogEntryID,
			AmountCents:    session.AmountTotal,
			Currency:       session.Currency,
			Status:         models.PaymentStatusOpen,
		}
		if meta.TimeSlotID != "" {
			slotID := meta.TimeSlotID
			payment.TimeSlotID = &slotID
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return false, internalError(err, "failed to record payment")
		}
	default:
		return false, internalError(err, "failed to load payment")
	}
	if err := s.payments.MarkStatus(ctx, session.ID, models.PaymentStatusPaid, session.PaymentIntentID); err != nil {
		return false, internalError(err, "failed to mark payment paid")
	}
	return replay, nil
}

func isSlotUnavailable(err error) bool {
	return appErrors.HasCode(err, appErrors.ErrConflict) ||
		appErrors.HasCode(err, appErrors.ErrValidation) ||
		appErrors.HasCode(err, appErrors.ErrNotFound)
}
