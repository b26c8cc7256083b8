package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type bookingRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error)
	LockByID(ctx context.Context, id string) (*models.Booking, error)
	LockBySlotAndStudent(ctx context.Context, slotID, studentID string) (*models.Booking, error)
	Create(ctx context.Context, booking *models.Booking) error
	Update(ctx context.Context, booking *models.Booking) error
	ListByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error)
}

type bookingSlotRepository interface {
	LockByID(ctx context.Context, id string) (*models.TimeSlot, error)
	CountActiveBookings(ctx context.Context, id string) (int, error)
}

type enrollmentLedger interface {
	LockActive(ctx context.Context, userID, entryID string) (*models.Enrollment, error)
	CheckAndRevoke(ctx context.Context, enrollmentID string) (bool, error)
}

// CompletionResult reports the effect of a completion-side action.
type CompletionResult struct {
	Booking           *models.Booking `json:"booking"`
	AlreadyConfirmed  bool            `json:"already_confirmed"`
	EnrollmentRevoked bool            `json:"enrollment_revoked"`
}

// MyBookings groups a student's bookings for display.
type MyBookings struct {
	Upcoming  []models.BookingDetail `json:"upcoming"`
	Past      []models.BookingDetail `json:"past"`
	Cancelled []models.BookingDetail `json:"cancelled"`
}

// BookingService drives the booking state machine.
type BookingService struct {
	tx          txRunner
	repo        bookingRepository
	slots       bookingSlotRepository
	enrollments enrollmentLedger
	metrics     *MetricsService
	logger      *zap.Logger
	now         Clock
}

// NewBookingService constructs a BookingService.
func NewBookingService(tx txRunner, repo bookingRepository, slots bookingSlotRepository, enrollments enrollmentLedger, metrics *MetricsService, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{tx: tx, repo: repo, slots: slots, enrollments: enrollments, metrics: metrics, logger: logger, now: defaultClock}
}

// Book reserves a seat in a slot for an enrolled student. A previously cancelled booking
// for the same slot is reactivated instead of inserting a new row.
func (s *BookingService) Book(ctx context.Context, studentID, slotID, notes string) (*models.Booking, error) {
	booking, _, err := s.book(ctx, studentID, slotID, notes, false)
	return booking, err
}

// BookOrKeep behaves like Book but treats an existing live booking for the pair as success.
// It reports whether a booking was created or reactivated.
func (s *BookingService) BookOrKeep(ctx context.Context, studentID, slotID, notes string) (*models.Booking, bool, error) {
	return s.book(ctx, studentID, slotID, notes, true)
}

func (s *BookingService) book(ctx context.Context, studentID, slotID, notes string, keepExisting bool) (*models.Booking, bool, error) {
	notes = strings.TrimSpace(notes)
	var (
		result  *models.Booking
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		changed = false
		slot, err := s.slots.LockByID(ctx, slotID)
		if err != nil {
			return lookupError(err, "time slot not found", "failed to load time slot")
		}

		// Lock order is slot then enrollment; a concurrent refund either lands first and is
		// seen here or waits and then cancels this booking.
		enrollment, err := s.enrollments.LockActive(ctx, studentID, slot.CatalogEntryID)
		if err != nil {
			return err
		}
		if enrollment == nil {
			return appErrors.Clone(appErrors.ErrConflict, "you must be enrolled in this class to book a session")
		}

		existing, err := s.repo.LockBySlotAndStudent(ctx, slotID, studentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to load booking")
		}
		if existing != nil && existing.Status != models.BookingStatusCancelled {
			if keepExisting {
				result = existing
				return nil
			}
			return appErrors.Clone(appErrors.ErrConflict, "you already have a booking for this time slot")
		}

		if !slot.IsActive {
			return appErrors.Clone(appErrors.ErrConflict, "time slot is not accepting bookings")
		}
		if !slot.StartTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrConflict, "time slot has already started")
		}
		active, err := s.slots.CountActiveBookings(ctx, slotID)
		if err != nil {
			return internalError(err, "failed to count bookings")
		}
		if active >= slot.MaxStudents {
			return appErrors.Clone(appErrors.ErrConflict, "time slot is fully booked")
		}

		enrollmentID := enrollment.ID
		if existing != nil {
			existing.Status = models.BookingStatusConfirmed
			existing.EnrollmentID = &enrollmentID
			existing.Notes = notes
			existing.CancelledAt = nil
			existing.CompletedAt = nil
			existing.TeacherConfirmedComplete = false
			existing.StudentConfirmedComplete = false
			if err := s.repo.Update(ctx, existing); err != nil {
				return internalError(err, "failed to reactivate booking")
			}
			result = existing
		} else {
			booking := &models.Booking{
				TimeSlotID:   slotID,
				StudentID:    studentID,
				EnrollmentID: &enrollmentID,
				Status:       models.BookingStatusConfirmed,
				Notes:        notes,
			}
			if err := s.repo.Create(ctx, booking); err != nil {
				return internalError(err, "failed to create booking")
			}
			result = booking
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.metrics.BookingTransition(string(models.BookingStatusConfirmed))
		s.logger.Info("booking confirmed",
			zap.String("booking_id", result.ID),
			zap.String("time_slot_id", slotID),
			zap.String("student_id", studentID))
	}
	return result, changed, nil
}

// Cancel lets the booking's student cancel before the session starts.
func (s *BookingService) Cancel(ctx context.Context, studentID, bookingID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, detail, err := s.lockWithDetail(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the student can cancel this booking")
		}
		if !current.Status.CanTransition(models.BookingStatusCancelled) {
			return appErrors.Clone(appErrors.ErrConflict, "booking cannot be cancelled in its current state")
		}
		now := s.now()
		if !detail.StartTime.After(now) {
			return appErrors.Clone(appErrors.ErrConflict, "sessions that already started cannot be cancelled")
		}
		current.Status = models.BookingStatusCancelled
		current.CancelledAt = &now
		if err := s.repo.Update(ctx, current); err != nil {
			return internalError(err, "failed to cancel booking")
		}
		booking = current
		_, err = s.checkEnrollment(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BookingTransition(string(models.BookingStatusCancelled))
	s.logger.Info("booking cancelled", zap.String("booking_id", bookingID), zap.String("student_id", studentID))
	return booking, nil
}

// MarkTeacherComplete records the teacher's side of completion.
func (s *BookingService) MarkTeacherComplete(ctx context.Context, teacherID, bookingID string) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*result = CompletionResult{}
		current, detail, err := s.lockWithDetail(ctx, bookingID)
		if err != nil {
			return err
		}
		if detail.TeacherID != teacherID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the teacher of this class can complete the booking")
		}
		if current.Status == models.BookingStatusCompleted {
			return appErrors.Clone(appErrors.ErrConflict, "booking is already completed")
		}
		if current.Status == models.BookingStatusPending {
			current.Status = models.BookingStatusConfirmed
		}
		if !current.Status.CanTransition(models.BookingStatusCompleted) {
			return appErrors.Clone(appErrors.ErrConflict, "booking cannot be completed in its current state")
		}
		now := s.now()
		current.Status = models.BookingStatusCompleted
		current.TeacherConfirmedComplete = true
		current.CompletedAt = &now
		if err := s.repo.Update(ctx, current); err != nil {
			return internalError(err, "failed to complete booking")
		}
		result.Booking = current
		if current.StudentConfirmedComplete {
			result.EnrollmentRevoked, err = s.checkEnrollment(ctx, current)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BookingTransition(string(models.BookingStatusCompleted))
	s.logger.Info("booking completed by teacher",
		zap.String("booking_id", bookingID),
		zap.Bool("enrollment_revoked", result.EnrollmentRevoked))
	return result, nil
}

// ConfirmStudentComplete records the student's side of completion. Repeated calls are no-ops.
func (s *BookingService) ConfirmStudentComplete(ctx context.Context, studentID, bookingID string) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*result = CompletionResult{}
		current, err := s.repo.LockByID(ctx, bookingID)
		if err != nil {
			return lookupError(err, "booking not found", "failed to load booking")
		}
		if current.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the student can confirm this booking")
		}
		result.Booking = current
		if current.StudentConfirmedComplete {
			result.AlreadyConfirmed = true
			return nil
		}
		if current.Status == models.BookingStatusCancelled || current.Status == models.BookingStatusNoShow {
			return appErrors.Clone(appErrors.ErrConflict, "booking cannot be confirmed in its current state")
		}
		current.StudentConfirmedComplete = true
		if err := s.repo.Update(ctx, current); err != nil {
			return internalError(err, "failed to confirm booking")
		}
		if current.Status == models.BookingStatusCompleted {
			result.EnrollmentRevoked, err = s.checkEnrollment(ctx, current)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !result.AlreadyConfirmed {
		s.logger.Info("booking confirmed by student",
			zap.String("booking_id", bookingID),
			zap.Bool("enrollment_revoked", result.EnrollmentRevoked))
	}
	return result, nil
}

// MarkNoShow lets the teacher close a started session the student did not attend.
func (s *BookingService) MarkNoShow(ctx context.Context, teacherID, bookingID string) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*result = CompletionResult{}
		current, detail, err := s.lockWithDetail(ctx, bookingID)
		if err != nil {
			return err
		}
		if detail.TeacherID != teacherID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the teacher of this class can mark a no-show")
		}
		if !current.Status.CanTransition(models.BookingStatusNoShow) {
			return appErrors.Clone(appErrors.ErrConflict, "only confirmed bookings can be marked as no-show")
		}
		if detail.StartTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrConflict, "the session has not started yet")
		}
		current.Status = models.BookingStatusNoShow
		if err := s.repo.Update(ctx, current); err != nil {
			return internalError(err, "failed to mark no-show")
		}
		result.Booking = current
		result.EnrollmentRevoked, err = s.checkEnrollment(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BookingTransition(string(models.BookingStatusNoShow))
	return result, nil
}

// ListMine splits a student's bookings into upcoming, past and cancelled.
func (s *BookingService) ListMine(ctx context.Context, studentID string) (*MyBookings, error) {
	bookings, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list bookings")
	}
	now := s.now()
	out := &MyBookings{
		Upcoming:  []models.BookingDetail{},
		Past:      []models.BookingDetail{},
		Cancelled: []models.BookingDetail{},
	}
	for _, b := range bookings {
		switch {
		case b.Status == models.BookingStatusCancelled:
			out.Cancelled = append(out.Cancelled, b)
		case b.StartTime.After(now) && b.Status.HoldsSeat():
			out.Upcoming = append(out.Upcoming, b)
		default:
			out.Past = append(out.Past, b)
		}
	}
	return out, nil
}

func (s *BookingService) lockWithDetail(ctx context.Context, bookingID string) (*models.Booking, *models.BookingDetail, error) {
	current, err := s.repo.LockByID(ctx, bookingID)
	if err != nil {
		return nil, nil, lookupError(err, "booking not found", "failed to load booking")
	}
	detail, err := s.repo.FindDetailByID(ctx, bookingID)
	if err != nil {
		return nil, nil, lookupError(err, "booking not found", "failed to load booking")
	}
	return current, detail, nil
}

func (s *BookingService) checkEnrollment(ctx context.Context, booking *models.Booking) (bool, error) {
	if booking.EnrollmentID == nil || *booking.EnrollmentID == "" {
		return false, nil
	}
	return s.enrollments.CheckAndRevoke(ctx, *booking.EnrollmentID)
}
