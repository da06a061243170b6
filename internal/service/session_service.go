package service

import (
	"context"
	"log/slog"
	"time"

	"appleverse/internal/cache"
	"appleverse/internal/middleware"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/security"

	"github.com/redis/go-redis/v9"
)

// SessionService verifies and revokes admin session tokens.
type SessionService struct {
	store        repository.CredentialStore
	issuer       *security.TokenIssuer
	rdb          *redis.Client
	storeTimeout time.Duration
	now          func() time.Time
}

// NewSessionService creates a SessionService. A nil Redis client disables revocation checks.
func NewSessionService(store repository.CredentialStore, issuer *security.TokenIssuer, rdb *redis.Client, storeTimeout time.Duration) *SessionService {
	return &SessionService{store: store, issuer: issuer, rdb: rdb, storeTimeout: storeTimeout, now: time.Now}
}

// VerifySession returns the admin record ID a valid token belongs to.
// The token must be unrevoked and its subject must still be an active admin.
func (s *SessionService) VerifySession(ctx context.Context, token string) (string, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return "", models.NewUnauthorizedError("Invalid or expired token")
	}

	revoked, err := cache.IsBlacklisted(ctx, s.rdb, claims.ID)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "token blacklist lookup failed", slog.String("error", err.Error()))
		return "", models.NewStorageUnavailableError(err)
	}
	if revoked {
		return "", models.NewUnauthorizedError("Token has been revoked")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, err := s.store.FindByID(sctx, models.StateActive, claims.Subject); err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return "", models.NewUnauthorizedError("Admin access has been revoked")
		}
		return "", err
	}
	return claims.Subject, nil
}

// Logout revokes token until it would have expired anyway.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired token")
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := cache.BlacklistToken(ctx, s.rdb, claims.ID, ttl); err != nil {
		return models.NewStorageUnavailableError(err)
	}
	middleware.Logger.InfoContext(ctx, "admin logged out", slog.String("record_id", claims.Subject))
	return nil
}

func (s *SessionService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
