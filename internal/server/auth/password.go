// Package auth implements the authentication and authorization core:
// password hashing, token issuance and verification, per-request session
// resolution and the permission gate.
package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted, key-stretched one-way hash of the plaintext.
// The output embeds the salt and cost, so two hashes of the same plaintext
// differ.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash. The
// comparison is constant-time inside bcrypt. A malformed hash is a
// verification failure, not a fatal error.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
