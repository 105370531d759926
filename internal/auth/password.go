package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the given cost.
// Cost 0 (or anything below bcrypt's minimum) falls back to the default.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword checks plain against a stored hash. Bcrypt hashes are
// verified with bcrypt; anything else is treated as a legacy unsalted SHA-256
// hex digest imported from the previous system and compared in constant time.
func VerifyPassword(stored, plain string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}
	legacy := LegacyHash(plain)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(legacy)) == 1
}

// LegacyHash reproduces the previous system's password digest: hex-encoded
// unsalted SHA-256. Kept only so imported accounts can still log in; new and
// updated passwords are always bcrypt.
func LegacyHash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
