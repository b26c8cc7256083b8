package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/dto"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/service"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
	"github.com/noah-isme/skillswap-api/pkg/export"
)

type scheduleServiceMock struct {
	format  export.Format
	active  *bool
	deleted string
	created dto.CreateSlotRequest
	err     error
}

func (m *scheduleServiceMock) CreateSlot(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.CreateSlotRequest) (*models.TimeSlot, error) {
	m.created = req
	return &models.TimeSlot{ID: "s1", CatalogEntryID: entryID, MaxStudents: req.MaxStudents}, m.err
}

func (m *scheduleServiceMock) ListAvailable(ctx context.Context, entryID string) ([]models.ScheduleSlot, error) {
	return []models.ScheduleSlot{}, m.err
}

func (m *scheduleServiceMock) SetActive(ctx context.Context, actor *models.JWTClaims, slotID string, active bool) (*models.TimeSlotAvailability, error) {
	m.active = &active
	return &models.TimeSlotAvailability{TimeSlot: models.TimeSlot{ID: slotID, IsActive: active}}, m.err
}

func (m *scheduleServiceMock) DeleteSlot(ctx context.Context, actor *models.JWTClaims, slotID string) error {
	m.deleted = slotID
	return m.err
}

func (m *scheduleServiceMock) TeacherSchedule(ctx context.Context, actor *models.JWTClaims, entryID string) (*models.TeacherSchedule, error) {
	return &models.TeacherSchedule{CatalogEntryID: entryID}, m.err
}

func (m *scheduleServiceMock) ExportSchedule(ctx context.Context, actor *models.JWTClaims, entryID string, format export.Format) (*service.ExportFile, error) {
	m.format = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{Filename: "go_schedule.pdf", ContentType: format.ContentType(), Data: []byte("%PDF-1.3")}, nil
}

func TestScheduleHandlerExportSetsAttachmentHeaders(t *testing.T) {
	svc := &scheduleServiceMock{}
	h := NewScheduleHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/catalog/e1/schedule/export?format=PDF", "", memberClaims(), idParam("e1"))

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatPDF, svc.format)
	assert.Equal(t, `attachment; filename="go_schedule.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestScheduleHandlerExportRejectsUnknownFormat(t *testing.T) {
	svc := &scheduleServiceMock{}
	h := NewScheduleHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/catalog/e1/schedule/export?format=xlsx", "", memberClaims(), idParam("e1"))

	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.format)
}

func TestScheduleHandlerCreateSlot(t *testing.T) {
	svc := &scheduleServiceMock{}
	h := NewScheduleHandler(svc)
	body := `{"start_time":"2030-06-01T09:00:00Z","end_time":"2030-06-01T10:00:00Z","max_students":3}`
	c, w := newTestContext(t, http.MethodPost, "/catalog/e1/slots", body, memberClaims(), idParam("e1"))

	h.CreateSlot(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 3, svc.created.MaxStudents)
}

func TestScheduleHandlerUpdateSlotRequiresIsActive(t *testing.T) {
	svc := &scheduleServiceMock{}
	h := NewScheduleHandler(svc)

	c, w := newTestContext(t, http.MethodPatch, "/slots/s1", `{}`, memberClaims(), idParam("s1"))
	h.UpdateSlot(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.active)

	c, w = newTestContext(t, http.MethodPatch, "/slots/s1", `{"is_active":false}`, memberClaims(), idParam("s1"))
	h.UpdateSlot(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.active)
	assert.False(t, *svc.active)
}

func TestScheduleHandlerDeleteSlot(t *testing.T) {
	svc := &scheduleServiceMock{}
	h := NewScheduleHandler(svc)
	c, w := newTestContext(t, http.MethodDelete, "/slots/s1", "", memberClaims(), idParam("s1"))

	h.DeleteSlot(c)
	c.Writer.WriteHeaderNow() // gin's engine flushes status-only responses after the handler returns
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "s1", svc.deleted)

	svc.err = appErrors.Clone(appErrors.ErrConflict, "slot has active bookings")
	c, w = newTestContext(t, http.MethodDelete, "/slots/s1", "", memberClaims(), idParam("s1"))
	h.DeleteSlot(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}
