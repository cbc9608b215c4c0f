package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// AdminSecret verifies the shared staff secret against a bcrypt hash.
type AdminSecret struct {
	hash []byte
}

// NewAdminSecret builds a verifier from a bcrypt hash, or hashes a
// plaintext secret when no hash is configured. Empty input disables admin
// authentication.
func NewAdminSecret(hash, plaintext string) (*AdminSecret, error) {
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, err
		}
		return &AdminSecret{hash: []byte(hash)}, nil
	case plaintext != "":
		if len(plaintext) > 72 {
			return nil, errors.New("admin key exceeds 72 bytes")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		return &AdminSecret{hash: hashed}, nil
	default:
		return &AdminSecret{}, nil
	}
}

// Enabled reports whether an admin secret is configured.
func (s *AdminSecret) Enabled() bool {
	return len(s.hash) > 0
}

// Verify reports whether secret matches.
func (s *AdminSecret) Verify(secret string) bool {
	if !s.Enabled() || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.hash, []byte(secret)) == nil
}
