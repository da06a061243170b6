package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenIssuerName is the iss claim on every session token.
	TokenIssuerName = "appleverse-api"
	// TokenAudience is the aud claim on every session token.
	TokenAudience = "appleverse-admin"
)

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// SessionClaims are the claims carried by an admin session token.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is a freshly issued token with its metadata.
type Session struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer signs and parses HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer signing with secret and expiring tokens after ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token whose subject is the admin record ID.
func (i *TokenIssuer) Issue(subject, email string) (*Session, error) {
	if len(i.secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	jti := uuid.NewString()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    TokenIssuerName,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: signed, ID: jti, ExpiresAt: expiresAt}, nil
}

// Parse validates signature, signing method, issuer, audience and expiry.
func (i *TokenIssuer) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuerName),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	return claims, nil
}

// TTL returns the configured session lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}
