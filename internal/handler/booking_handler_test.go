package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/service"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type bookingServiceMock struct {
	calls []string
	notes string
	err   error
}

func (m *bookingServiceMock) Book(ctx context.Context, studentID, slotID, notes string) (*models.Booking, error) {
	m.calls = append(m.calls, "book:"+studentID+":"+slotID)
	m.notes = notes
	if m.err != nil {
		return nil, m.err
	}
	return &models.Booking{ID: "b1", TimeSlotID: slotID, Status: models.BookingStatusConfirmed}, nil
}

func (m *bookingServiceMock) Cancel(ctx context.Context, studentID, bookingID string) (*models.Booking, error) {
	m.calls = append(m.calls, "cancel:"+bookingID)
	return &models.Booking{ID: bookingID, Status: models.BookingStatusCancelled}, m.err
}

func (m *bookingServiceMock) MarkTeacherComplete(ctx context.Context, teacherID, bookingID string) (*service.CompletionResult, error) {
	m.calls = append(m.calls, "teacher:"+bookingID)
	return &service.CompletionResult{Booking: &models.Booking{ID: bookingID}}, m.err
}

func (m *bookingServiceMock) ConfirmStudentComplete(ctx context.Context, studentID, bookingID string) (*service.CompletionResult, error) {
	m.calls = append(m.calls, "student:"+bookingID)
	return &service.CompletionResult{Booking: &models.Booking{ID: bookingID, Status: models.BookingStatusCompleted}}, m.err
}

func (m *bookingServiceMock) MarkNoShow(ctx context.Context, teacherID, bookingID string) (*service.CompletionResult, error) {
	m.calls = append(m.calls, "noshow:"+bookingID)
	return &service.CompletionResult{Booking: &models.Booking{ID: bookingID, Status: models.BookingStatusNoShow}, EnrollmentRevoked: true}, m.err
}

func (m *bookingServiceMock) ListMine(ctx context.Context, studentID string) (*service.MyBookings, error) {
	m.calls = append(m.calls, "mine:"+studentID)
	return &service.MyBookings{}, m.err
}

func TestBookingHandlerBookWithoutBody(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/slots/s1/bookings", "", memberClaims(), idParam("s1"))

	h.Book(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"book:user-1:s1"}, svc.calls)
	assert.Empty(t, svc.notes)
}

func TestBookingHandlerBookWithNotes(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/slots/s1/bookings", `{"notes":"bring a laptop"}`, memberClaims(), idParam("s1"))

	h.Book(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bring a laptop", svc.notes)
}

func TestBookingHandlerBookFullSlot(t *testing.T) {
	svc := &bookingServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "time slot is full")}
	h := NewBookingHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/slots/s1/bookings", "", memberClaims(), idParam("s1"))

	h.Book(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBookingHandlerCompletionRoutes(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)

	c, w := newTestContext(t, http.MethodPost, "/bookings/b1/teacher-complete", "", memberClaims(), idParam("b1"))
	h.TeacherComplete(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(t, http.MethodPost, "/bookings/b1/student-confirm", "", memberClaims(), idParam("b1"))
	h.StudentConfirm(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(t, http.MethodPost, "/bookings/b1/no-show", "", memberClaims(), idParam("b1"))
	h.NoShow(c)
	require.Equal(t, http.StatusOK, w.Code)
	var result service.CompletionResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.True(t, result.EnrollmentRevoked)

	assert.Equal(t, []string{"teacher:b1", "student:b1", "noshow:b1"}, svc.calls)
}

func TestBookingHandlerCancelRequiresClaims(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/bookings/b1/cancel", "", nil, idParam("b1"))

	h.Cancel(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.calls)
}

func TestBookingHandlerMine(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/bookings/me", "", memberClaims())

	h.Mine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"mine:user-1"}, svc.calls)
}
