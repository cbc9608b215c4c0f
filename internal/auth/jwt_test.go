package auth

import (
	"testing"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	start := time.Now()

	token, expiresAt, err := tm.GenerateToken(domain.Customer(7))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)
	assert.Equal(t, "owner:7", claims.Subject)
	assert.Equal(t, domain.Customer(7), claims.Assignment())
}

func TestTokenManager_AdminToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, _, err := tm.GenerateToken(domain.Admin())
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Admin(), claims.Assignment())
}

func TestTokenManager_RejectsGuest(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, _, err := tm.GenerateToken(domain.Guest())

	assert.Error(t, err)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("one-secret", time.Hour)
	verifier := NewTokenManager("another-secret", time.Hour)

	token, _, err := issuer.GenerateToken(domain.Admin())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Nanosecond)

	token, _, err := tm.GenerateToken(domain.Admin())
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestAdminSecret(t *testing.T) {
	plain, err := NewAdminSecret("", "s3cret")
	require.NoError(t, err)
	assert.True(t, plain.Verify("s3cret"))
	assert.False(t, plain.Verify("S3cret"))
	assert.False(t, plain.Verify(""))

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)
	hashed, err := NewAdminSecret(string(hash), "ignored")
	require.NoError(t, err)
	assert.True(t, hashed.Verify("hashed-key"))
	assert.False(t, hashed.Verify("ignored"))

	disabled, err := NewAdminSecret("", "")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.False(t, disabled.Verify("anything"))

	_, err = NewAdminSecret("not-a-bcrypt-hash", "")
	assert.Error(t, err)
}
