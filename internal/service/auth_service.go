package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	appErrors "github.com/noah-isme/skillswap-api/pkg/errors"
)

type authUserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
}

type userSyncMarker interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AuthConfig defines how access tokens are verified.
type AuthConfig struct {
	AccessTokenSecret string
	Issuer            string
	Audience          []string
	UserSyncTTL       time.Duration
}

// AuthService verifies access tokens issued by the identity service and mirrors the caller
// into the users table so foreign keys hold.
type AuthService struct {
	users  authUserRepository
	marker userSyncMarker
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, marker userSyncMarker, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.UserSyncTTL <= 0 {
		config.UserSyncTTL = time.Hour
	}
	return &AuthService{users: users, marker: marker, logger: logger, config: config}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	for _, aud := range s.config.Audience {
		opts = append(opts, jwt.WithAudience(aud))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role == "" {
		claims.Role = models.RoleMember
	}
	return claims, nil
}

// IssueToken signs claims for the given user. Used by tests and local tooling; production
// tokens come from the identity service.
func (s *AuthService) IssueToken(user *models.User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.config.Issuer,
			Audience:  s.config.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, nil
}

// EnsureUser mirrors the token subject into the users table at most once per sync window.
func (s *AuthService) EnsureUser(ctx context.Context, claims *models.JWTClaims) error {
	key := "auth:user-synced:" + claims.UserID
	if s.marker != nil {
		if seen, err := s.marker.Exists(ctx, key); err == nil && seen {
			return nil
		}
	}
	user := &models.User{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
		Active:   true,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Error("failed to sync user", zap.String("user_id", claims.UserID), zap.Error(err))
		return internalError(err, "failed to sync user")
	}
	if s.marker != nil {
		if _, err := s.marker.SetIfAbsent(ctx, key, s.config.UserSyncTTL); err != nil {
			s.logger.Warn("failed to mark user synced", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
	return nil
}
