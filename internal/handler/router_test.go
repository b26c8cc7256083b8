package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type fixedAuthenticator struct {
	claims *models.JWTClaims
}

func (a fixedAuthenticator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "valid" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return a.claims, nil
}

func (a fixedAuthenticator) EnsureUser(ctx context.Context, claims *models.JWTClaims) error {
	return nil
}

type enrollmentServiceMock struct{ userID string }

func (m *enrollmentServiceMock) ListMine(ctx context.Context, userID string) ([]models.EnrollmentWithEntry, error) {
	m.userID = userID
	return []models.EnrollmentWithEntry{}, nil
}

type routerFixture struct {
	engine     *gin.Engine
	payments   *paymentServiceMock
	catalog    *catalogServiceMock
	enrollment *enrollmentServiceMock
}

func newRouterFixture(role models.UserRole, checks map[string]ReadinessCheck) routerFixture {
	gin.SetMode(gin.TestMode)
	f := routerFixture{
		engine:     gin.New(),
		payments:   &paymentServiceMock{},
		catalog:    &catalogServiceMock{},
		enrollment: &enrollmentServiceMock{},
	}
	RegisterRoutes(f.engine, "/api/v1", Handlers{
		Catalog:    NewCatalogHandler(f.catalog, &reviewServiceMock{}),
		Schedule:   NewScheduleHandler(&scheduleServiceMock{}),
		Booking:    NewBookingHandler(&bookingServiceMock{}),
		Enrollment: NewEnrollmentHandler(f.enrollment),
		Payment:    NewPaymentHandler(f.payments),
		Trade:      NewTradeHandler(&tradeServiceMock{}),
		Metrics:    NewMetricsHandler(nil, checks),
	}, fixedAuthenticator{claims: &models.JWTClaims{UserID: "user-1", Role: role}})
	return f
}

func (f routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestRouterWebhookIsPublic(t *testing.T) {
	f := newRouterFixture(models.RoleMember, nil)

	w := f.do(http.MethodPost, "/api/v1/payments/webhook", "", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, string(f.payments.payload))
}

func TestRouterSecuredRoutesNeedToken(t *testing.T) {
	f := newRouterFixture(models.RoleMember, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/catalog", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/enrollments/me", "expired", "").Code)

	w := f.do(http.MethodGet, "/api/v1/enrollments/me", "valid", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", f.enrollment.userID)
}

func TestRouterCatalogDeleteIsAdminOnly(t *testing.T) {
	member := newRouterFixture(models.RoleMember, nil)
	assert.Equal(t, http.StatusForbidden, member.do(http.MethodDelete, "/api/v1/catalog/e1", "valid", "").Code)
	assert.Empty(t, member.catalog.deleted)

	admin := newRouterFixture(models.RoleAdmin, nil)
	assert.Equal(t, http.StatusNoContent, admin.do(http.MethodDelete, "/api/v1/catalog/e1", "valid", "").Code)
	assert.Equal(t, "e1", admin.catalog.deleted)
}

func TestRouterBookingsMeDoesNotShadowBookingIDs(t *testing.T) {
	f := newRouterFixture(models.RoleMember, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/bookings/me", "valid", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/bookings/b1/cancel", "valid", "").Code)
}

func TestRouterProbes(t *testing.T) {
	healthy := newRouterFixture(models.RoleMember, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/ready", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, healthy.do(http.MethodGet, "/metrics", "", "").Code)

	degraded := newRouterFixture(models.RoleMember, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w := degraded.do(http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
	assert.NotContains(t, w.Body.String(), "postgres")
}
