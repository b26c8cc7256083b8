package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type mockUserUpserter struct {
	upserts []*models.User
	err     error
}

func (m *mockUserUpserter) Upsert(ctx context.Context, user *models.User) error {
	if m.err != nil {
		return m.err
	}
	m.upserts = append(m.upserts, user)
	return nil
}

type mockMarker struct {
	keys map[string]bool
}

func (m *mockMarker) Exists(ctx context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *mockMarker) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func newTestAuthService() (*AuthService, *mockUserUpserter, *mockMarker) {
	users := &mockUserUpserter{}
	marker := &mockMarker{keys: map[string]bool{}}
	svc := NewAuthService(users, marker, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "skillswap-auth"})
	return svc, users, marker
}

func TestAuthServiceValidateTokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestAuthService()
	token, err := svc.IssueToken(&models.User{ID: "u-1", Email: "ana@example.com", FullName: "Ana", Role: models.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestAuthServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc, _, _ := newTestAuthService()
	expired, err := svc.IssueToken(&models.User{ID: "u-1", Role: models.RoleMember}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))

	other := NewAuthService(&mockUserUpserter{}, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "skillswap-auth"})
	foreign, err := other.IssueToken(&models.User{ID: "u-1"}, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))

	wrongIssuer := NewAuthService(&mockUserUpserter{}, nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, err := wrongIssuer.IssueToken(&models.User{ID: "u-1"}, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceRejectsNoneAlgorithm(t *testing.T) {
	svc, _, _ := newTestAuthService()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestAuthServiceDefaultsRoleToMember(t *testing.T) {
	svc, _, _ := newTestAuthService()
	token, err := svc.IssueToken(&models.User{ID: "u-2"}, time.Minute)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, claims.Role)
}

func TestAuthServiceEnsureUserSyncsOnce(t *testing.T) {
	svc, users, _ := newTestAuthService()
	claims := &models.JWTClaims{UserID: "u-1", Email: "ana@example.com", Role: models.RoleMember}

	require.NoError(t, svc.EnsureUser(context.Background(), claims))
	require.NoError(t, svc.EnsureUser(context.Background(), claims))
	require.Len(t, users.upserts, 1)
	assert.True(t, users.upserts[0].Active)
}

func TestAuthServiceEnsureUserFailure(t *testing.T) {
	users := &mockUserUpserter{err: errors.New("db down")}
	marker := &mockMarker{keys: map[string]bool{}}
	svc := NewAuthService(users, marker, nil, AuthConfig{AccessTokenSecret: "secret"})

	err := svc.EnsureUser(context.Background(), &models.JWTClaims{UserID: "u-1"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal))
	assert.Empty(t, marker.keys)
}
