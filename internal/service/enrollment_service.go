package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type enrollmentRepository interface {
	LockByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	LockByUserAndEntry(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	InsertIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	Delete(ctx context.Context, id string) error
	ListByPurchaseID(ctx context.Context, purchaseID string) ([]models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentWithEntry, error)
}

type enrollmentBookingRepository interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) error
}

type grantRequest struct {
	UserID     string            `validate:"required,uuid"`
	EntryID    string            `validate:"required,uuid"`
	Via        models.GrantedVia `validate:"required,oneof=PURCHASE TRADE"`
	PurchaseID string            `validate:"required"`
}

// EnrollmentService is the ledger of who may book which catalog entry.
type EnrollmentService struct {
	tx        txRunner
	repo      enrollmentRepository
	bookings  enrollmentBookingRepository
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       Clock
}

// NewEnrollmentService constructs the ledger.
func NewEnrollmentService(tx txRunner, repo enrollmentRepository, bookings enrollmentBookingRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{tx: tx, repo: repo, bookings: bookings, validator: validate, metrics: metrics, logger: logger, now: defaultClock}
}

// Grant makes the (user, entry) enrollment ACTIVE for the given purchase reference.
// A purchase that already produced a revoked or refunded enrollment is not granted twice.
func (s *EnrollmentService) Grant(ctx context.Context, userID, entryID string, via models.GrantedVia, purchaseID string) (*models.Enrollment, error) {
	req := grantRequest{UserID: userID, EntryID: entryID, Via: via, PurchaseID: purchaseID}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment grant")
	}

	var granted *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, created, err := s.lockOrInsert(ctx, req)
		if err != nil {
			return err
		}
		if created != nil {
			granted = created
			s.metrics.EnrollmentEvent("granted", string(via))
			return nil
		}

		switch current.Status {
		case models.EnrollmentStatusActive, models.EnrollmentStatusPending:
			current.Status = models.EnrollmentStatusActive
			current.GrantedVia = via
			current.PurchaseID = purchaseID
			if err := s.repo.Update(ctx, current); err != nil {
				return internalError(err, "failed to update enrollment")
			}
			granted = current
		case models.EnrollmentStatusRevoked, models.EnrollmentStatusRefunded:
			if current.PurchaseID == purchaseID {
				s.logger.Info("grant replay ignored",
					zap.String("enrollment_id", current.ID),
					zap.String("purchase_id", purchaseID),
					zap.String("status", string(current.Status)))
				granted = current
				return nil
			}
			if err := s.repo.Delete(ctx, current.ID); err != nil {
				return internalError(err, "failed to reset enrollment")
			}
			fresh := newActiveEnrollment(req)
			if _, err := s.repo.InsertIfAbsent(ctx, fresh); err != nil {
				return internalError(err, "failed to create enrollment")
			}
			granted = fresh
			s.metrics.EnrollmentEvent("regranted", string(via))
		default:
			return appErrors.Clone(appErrors.ErrConflict, "enrollment is in an unknown state")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("enrollment granted",
		zap.String("enrollment_id", granted.ID),
		zap.String("user_id", userID),
		zap.String("catalog_entry_id", entryID),
		zap.String("status", string(granted.Status)),
		zap.String("via", string(via)))
	return granted, nil
}

// lockOrInsert returns either the locked existing row or the freshly inserted ACTIVE row.
func (s *EnrollmentService) lockOrInsert(ctx context.Context, req grantRequest) (existing, created *models.Enrollment, err error) {
	existing, err = s.repo.LockByUserAndEntry(ctx, req.UserID, req.EntryID)
	if err == nil {
		return existing, nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, internalError(err, "failed to load enrollment")
	}

	fresh := newActiveEnrollment(req)
	inserted, err := s.repo.InsertIfAbsent(ctx, fresh)
	if err != nil {
		return nil, nil, internalError(err, "failed to create enrollment")
	}
	if inserted {
		return nil, fresh, nil
	}

	// A concurrent grant inserted first; continue against its row.
	existing, err = s.repo.LockByUserAndEntry(ctx, req.UserID, req.EntryID)
	if err != nil {
		return nil, nil, internalError(err, "failed to load enrollment")
	}
	return existing, nil, nil
}

func newActiveEnrollment(req grantRequest) *models.Enrollment {
	return &models.Enrollment{
		UserID:         req.UserID,
		CatalogEntryID: req.EntryID,
		Status:         models.EnrollmentStatusActive,
		GrantedVia:     req.Via,
		PurchaseID:     req.PurchaseID,
	}
}

// Active returns the user's ACTIVE enrollment for the entry, or nil when there is none.
func (s *EnrollmentService) Active(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByUserAndEntry(ctx, userID, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	if !enrollment.CanBookSessions() {
		return nil, nil
	}
	return enrollment, nil
}

// LockActive is Active holding the enrollment row lock for the rest of the transaction.
func (s *EnrollmentService) LockActive(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.LockByUserAndEntry(ctx, userID, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, internalError(err, "failed to lock enrollment")
	}
	if !enrollment.CanBookSessions() {
		return nil, nil
	}
	return enrollment, nil
}

// Get returns the user's enrollment for an entry in any state.
func (s *EnrollmentService) Get(ctx context.Context, userID, entryID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByUserAndEntry(ctx, userID, entryID)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	return enrollment, nil
}

// ListMine returns all enrollments of a user.
func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]models.EnrollmentWithEntry, error) {
	enrollments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	return enrollments, nil
}

// CheckAndRevoke revokes an ACTIVE enrollment once its bookings are all resolved with
// at least one mutually confirmed completion. It reports whether a revocation happened.
func (s *EnrollmentService) CheckAndRevoke(ctx context.Context, enrollmentID string) (bool, error) {
	revoked := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Concurrent completions under one enrollment serialise here so the last one sees
		// every sibling booking resolved.
		enrollment, err := s.repo.LockByID(ctx, enrollmentID)
		if err != nil {
			return lookupError(err, "enrollment not found", "failed to load enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusActive {
			return nil
		}
		bookings, err := s.bookings.ListByEnrollment(ctx, enrollmentID)
		if err != nil {
			return internalError(err, "failed to load enrollment bookings")
		}
		if !models.EnrollmentResolved(bookings) {
			return nil
		}
		if err := s.repo.UpdateStatus(ctx, enrollmentID, models.EnrollmentStatusRevoked); err != nil {
			return internalError(err, "failed to revoke enrollment")
		}
		revoked = true
		s.metrics.EnrollmentEvent("revoked", string(enrollment.GrantedVia))
		s.logger.Info("enrollment revoked after completion",
			zap.String("enrollment_id", enrollmentID),
			zap.String("user_id", enrollment.UserID),
			zap.Int("bookings", len(bookings)))
		return nil
	})
	return revoked, err
}

// RefundByPurchase marks every enrollment granted by purchaseID as REFUNDED and cancels its open bookings.
func (s *EnrollmentService) RefundByPurchase(ctx context.Context, purchaseID string) (int, error) {
	if purchaseID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "purchase id is required")
	}
	refunded := 0
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		refunded = 0
		enrollments, err := s.repo.ListByPurchaseID(ctx, purchaseID)
		if err != nil {
			return internalError(err, "failed to load enrollments")
		}
		for i := range enrollments {
			enrollment, err := s.repo.LockByID(ctx, enrollments[i].ID)
			if err != nil {
				return internalError(err, "failed to lock enrollment")
			}
			if enrollment.Status == models.EnrollmentStatusRefunded {
				continue
			}
			if err := s.refund(ctx, enrollment); err != nil {
				return err
			}
			refunded++
		}
		return nil
	})
	return refunded, err
}

func (s *EnrollmentService) refund(ctx context.Context, enrollment *models.Enrollment) error {
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusRefunded); err != nil {
		return internalError(err, "failed to refund enrollment")
	}
	bookings, err := s.bookings.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return internalError(err, "failed to load enrollment bookings")
	}
	now := s.now()
	cancelled := 0
	for i := range bookings {
		booking := bookings[i]
		if !booking.Status.HoldsSeat() {
			continue
		}
		booking.Status = models.BookingStatusCancelled
		booking.CancelledAt = &now
		if err := s.bookings.Update(ctx, &booking); err != nil {
			return internalError(err, "failed to cancel booking")
		}
		cancelled++
	}
	s.metrics.EnrollmentEvent("refunded", string(enrollment.GrantedVia))
	s.logger.Info("enrollment refunded",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("purchase_id", enrollment.PurchaseID),
		zap.Int("bookings_cancelled", cancelled))
	return nil
}
