package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey hashes a raw API key with bcrypt at the default cost.
func HashAPIKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash api key: %w", err)
	}
	return string(hash), nil
}

// DummyVerify runs a bcrypt comparison against a fixed hash so that a
// lookup-miss path (no stored hash to compare against) costs the same as
// a real comparison, preventing response timing from revealing whether an
// actor_id or key prefix exists.
func DummyVerify() {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte("dummy"))
}

// dummyHash is a bcrypt hash of an arbitrary fixed string, computed once
// ahead of time purely to give DummyVerify a well-formed hash to compare
// against.
const dummyHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8lwuMI2m6w0Q8b2n0TAfYnYf1Bdl5W"

// VerifyAPIKey checks a raw API key against a bcrypt hash.
func VerifyAPIKey(rawKey, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)) == nil
}
