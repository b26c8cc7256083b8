package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
	"github.com/noah-isme/skillswap-api/pkg/export"
)

type slotRepository interface {
	Create(ctx context.Context, slot *models.TimeSlot) error
	FindByID(ctx context.Context, id string) (*models.TimeSlotAvailability, error)
	LockByID(ctx context.Context, id string) (*models.TimeSlot, error)
	CountActiveBookings(ctx context.Context, id string) (int, error)
	ListByEntry(ctx context.Context, entryID string, availableFrom *time.Time) ([]models.TimeSlotAvailability, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type scheduleBookingRepository interface {
	ListByEntry(ctx context.Context, entryID string) ([]models.BookingDetail, error)
}

type scheduleExporter interface {
	Render(format export.Format, baseName string, data export.Dataset) (*ExportFile, error)
}

// ScheduleService manages the teacher calendar of a catalog entry.
type ScheduleService struct {
	tx        txRunner
	slots     slotRepository
	catalog   catalogReader
	bookings  scheduleBookingRepository
	exporter  scheduleExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       Clock
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(tx txRunner, slots slotRepository, catalog catalogReader, bookings scheduleBookingRepository, exporter scheduleExporter, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{tx: tx, slots: slots, catalog: catalog, bookings: bookings, exporter: exporter, validator: validate, logger: logger, now: defaultClock}
}

// CreateSlot adds an active slot to an entry the actor teaches.
func (s *ScheduleService) CreateSlot(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.CreateSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid time slot payload")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if req.MaxStudents < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max students must be at least 1")
	}
	if _, err := s.ownedEntry(ctx, actor, entryID); err != nil {
		return nil, err
	}

	slot := &models.TimeSlot{
		CatalogEntryID: entryID,
		StartTime:      req.StartTime.UTC(),
		EndTime:        req.EndTime.UTC(),
		MaxStudents:    req.MaxStudents,
		IsActive:       true,
		Notes:          strings.TrimSpace(req.Notes),
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, internalError(err, "failed to create time slot")
	}
	s.logger.Info("time slot created", zap.String("time_slot_id", slot.ID), zap.String("catalog_entry_id", entryID))
	return slot, nil
}

// ListAvailable returns bookable slots of an entry, soonest first.
func (s *ScheduleService) ListAvailable(ctx context.Context, entryID string) ([]models.ScheduleSlot, error) {
	if _, err := s.catalog.FindByID(ctx, entryID); err != nil {
		return nil, lookupError(err, "catalog entry not found", "failed to load catalog entry")
	}
	now := s.now()
	slots, err := s.slots.ListByEntry(ctx, entryID, &now)
	if err != nil {
		return nil, internalError(err, "failed to list time slots")
	}
	out := make([]models.ScheduleSlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Bookable(now) {
			continue
		}
		out = append(out, models.ScheduleSlot{TimeSlotAvailability: slot, AvailableSpots: slot.AvailableSpots()})
	}
	return out, nil
}

// AvailableSpots returns the remaining capacity of a slot.
func (s *ScheduleService) AvailableSpots(ctx context.Context, slotID string) (int, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return 0, lookupError(err, "time slot not found", "failed to load time slot")
	}
	return slot.AvailableSpots(), nil
}

// SetActive toggles whether a slot accepts bookings.
func (s *ScheduleService) SetActive(ctx context.Context, actor *models.JWTClaims, slotID string, active bool) (*models.TimeSlotAvailability, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, lookupError(err, "time slot not found", "failed to load time slot")
	}
	if _, err := s.ownedEntry(ctx, actor, slot.CatalogEntryID); err != nil {
		return nil, err
	}
	if err := s.slots.SetActive(ctx, slotID, active); err != nil {
		return nil, internalError(err, "failed to update time slot")
	}
	slot.IsActive = active
	return slot, nil
}

// DeleteSlot removes a slot that has no live bookings.
func (s *ScheduleService) DeleteSlot(ctx context.Context, actor *models.JWTClaims, slotID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		slot, err := s.slots.LockByID(ctx, slotID)
		if err != nil {
			return lookupError(err, "time slot not found", "failed to load time slot")
		}
		if _, err := s.ownedEntry(ctx, actor, slot.CatalogEntryID); err != nil {
			return err
		}
		active, err := s.slots.CountActiveBookings(ctx, slotID)
		if err != nil {
			return internalError(err, "failed to count bookings")
		}
		if active > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "time slot has active bookings")
		}
		if err := s.slots.Delete(ctx, slotID); err != nil {
			return internalError(err, "failed to delete time slot")
		}
		s.logger.Info("time slot deleted", zap.String("time_slot_id", slotID))
		return nil
	})
}

// TeacherSchedule returns the owner's view of every slot with its bookings.
func (s *ScheduleService) TeacherSchedule(ctx context.Context, actor *models.JWTClaims, entryID string) (*models.TeacherSchedule, error) {
	if _, err := s.ownedEntry(ctx, actor, entryID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByEntry(ctx, entryID, nil)
	if err != nil {
		return nil, internalError(err, "failed to list time slots")
	}
	bookings, err := s.bookings.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, internalError(err, "failed to list bookings")
	}
	bySlot := make(map[string][]models.BookingDetail, len(slots))
	for _, b := range bookings {
		bySlot[b.TimeSlotID] = append(bySlot[b.TimeSlotID], b)
	}

	now := s.now()
	schedule := &models.TeacherSchedule{
		CatalogEntryID: entryID,
		Upcoming:       []models.ScheduleSlot{},
		Past:           []models.ScheduleSlot{},
	}
	for _, slot := range slots {
		item := models.ScheduleSlot{
			TimeSlotAvailability: slot,
			AvailableSpots:       slot.AvailableSpots(),
			Bookings:             bySlot[slot.ID],
		}
		if item.Bookings == nil {
			item.Bookings = []models.BookingDetail{}
		}
		if slot.EndTime.After(now) {
			schedule.Upcoming = append(schedule.Upcoming, item)
		} else {
			schedule.Past = append(schedule.Past, item)
		}
	}
	return schedule, nil
}

// ExportSchedule renders the entry roster as CSV or PDF.
func (s *ScheduleService) ExportSchedule(ctx context.Context, actor *models.JWTClaims, entryID string, format export.Format) (*ExportFile, error) {
	entry, err := s.ownedEntry(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.TeacherSchedule(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:    entry.Title,
		Subtitle: fmt.Sprintf("Roster generated %s", formatSlotTime(s.now())),
		Headers:  []string{"Start", "End", "Capacity", "Booked", "Student", "Status", "Teacher Confirmed", "Student Confirmed", "Notes"},
	}
	for _, group := range [][]models.ScheduleSlot{schedule.Upcoming, schedule.Past} {
		for _, slot := range group {
			base := map[string]string{
				"Start":    formatSlotTime(slot.StartTime),
				"End":      formatSlotTime(slot.EndTime),
				"Capacity": strconv.Itoa(slot.MaxStudents),
				"Booked":   strconv.Itoa(slot.ActiveBookings),
			}
			if len(slot.Bookings) == 0 {
				dataset.Rows = append(dataset.Rows, base)
				continue
			}
			for _, b := range slot.Bookings {
				row := make(map[string]string, len(dataset.Headers))
				for k, v := range base {
					row[k] = v
				}
				row["Student"] = b.StudentName
				row["Status"] = string(b.Status)
				row["Teacher Confirmed"] = strconv.FormatBool(b.TeacherConfirmedComplete)
				row["Student Confirmed"] = strconv.FormatBool(b.StudentConfirmedComplete)
				row["Notes"] = b.Notes
				dataset.Rows = append(dataset.Rows, row)
			}
		}
	}
	return s.exporter.Render(format, entry.Title+"_schedule", dataset)
}

func (s *ScheduleService) ownedEntry(ctx context.Context, actor *models.JWTClaims, entryID string) (*models.CatalogEntry, error) {
	entry, err := s.catalog.FindByID(ctx, entryID)
	if err != nil {
		return nil, lookupError(err, "catalog entry not found", "failed to load catalog entry")
	}
	if actor == nil || (!entry.OwnedBy(actor.UserID) && !actor.IsAdmin()) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "catalog entry not found")
	}
	return entry, nil
}
