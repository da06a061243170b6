package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, h.Verify("s3cret", hash))
	assert.False(t, h.Verify("wrong", hash))
	assert.False(t, h.Verify("s3cret", ""))

	again, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "hashes must be salted")
}

func TestNewBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).Cost())
	assert.Equal(t, 5, NewBcryptHasher(5).Cost())
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-that-is-long-enough-for-hs256", time.Hour)

	session, err := issuer.Issue("record-1", "main@appleverse.test")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	claims, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "record-1", claims.Subject)
	assert.Equal(t, "main@appleverse.test", claims.Email)
	assert.Equal(t, session.ID, claims.ID)
	assert.Equal(t, TokenIssuerName, claims.Issuer)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	secret := "test-secret-that-is-long-enough-for-hs256"
	issuer := NewTokenIssuer(secret, time.Hour)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	base := func() SessionClaims {
		now := time.Now()
		return SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "record-1",
			Issuer:    TokenIssuerName,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        "jti-1",
		}}
	}

	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := base()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := base()
	wrongAudience.Audience = jwt.ClaimStrings{"other-client"}

	noSubject := base()
	noSubject.Subject = ""

	tests := map[string]string{
		"garbage":         "not-a-token",
		"wrong secret":    sign(base(), jwt.SigningMethodHS256, []byte("another-secret")),
		"expired":         sign(expired, jwt.SigningMethodHS256, []byte(secret)),
		"wrong issuer":    sign(wrongIssuer, jwt.SigningMethodHS256, []byte(secret)),
		"wrong audience":  sign(wrongAudience, jwt.SigningMethodHS256, []byte(secret)),
		"missing subject": sign(noSubject, jwt.SigningMethodHS256, []byte(secret)),
		"hs512":           sign(base(), jwt.SigningMethodHS512, []byte(secret)),
		"none":            sign(base(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestTokenIssuer_EmptySecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour).Issue("id", "e@x.io")
	assert.Error(t, err)
}
