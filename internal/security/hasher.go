// Package security provides secret hashing and session token handling.
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretHasher hashes and verifies plaintext secrets.
type SecretHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// BcryptHasher is a SecretHasher backed by salted bcrypt.
type BcryptHasher struct {
	cost int
	// dummy is compared against when there is no stored hash, so the call costs the same.
	dummy []byte
}

// NewBcryptHasher returns a hasher using the given cost. Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("appleverse-dummy-secret"), cost)
	return &BcryptHasher{cost: cost, dummy: dummy}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. An empty hash performs a
// comparison against a dummy hash and returns false.
func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Cost returns the configured bcrypt cost.
func (h *BcryptHasher) Cost() int {
	return h.cost
}
