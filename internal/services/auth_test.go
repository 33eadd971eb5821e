package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiofolio/portfolio/backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T, password string) (*AuthService, *time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.AuthConfig{
		JWTSecret:         "test-secret",
		AdminPasswordHash: string(hash),
		TokenTTLHours:     24,
	}
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := NewAuthService(cfg, zerolog.Nop()).WithClock(func() time.Time { return clock })
	return svc, &clock
}

func TestAuthService_VerifyPassword(t *testing.T) {
	svc, _ := newTestAuthService(t, "s3cret!")

	assert.True(t, svc.VerifyPassword("s3cret!"))
	assert.False(t, svc.VerifyPassword("wrong"))
	assert.False(t, svc.VerifyPassword(""))
}

func TestAuthService_IssueAndVerify(t *testing.T) {
	svc, clock := newTestAuthService(t, "s3cret!")

	token, expireAt, err := svc.IssueToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, clock.Add(24*time.Hour), expireAt)
	assert.True(t, svc.VerifyToken(token))
}

func TestAuthService_TokenExpires(t *testing.T) {
	svc, clock := newTestAuthService(t, "s3cret!")

	token, _, err := svc.IssueToken()
	require.NoError(t, err)

	*clock = clock.Add(23 * time.Hour)
	assert.True(t, svc.VerifyToken(token), "token should still be valid before the TTL")

	*clock = clock.Add(time.Hour + time.Second)
	assert.False(t, svc.VerifyToken(token), "token should be rejected after the TTL")
}

func TestAuthService_VerifyTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestAuthService(t, "s3cret!")

	assert.False(t, svc.VerifyToken(""))
	assert.False(t, svc.VerifyToken("not-a-token"))
	assert.False(t, svc.VerifyToken("a.b.c"))
}

func TestAuthService_VerifyTokenRejectsOtherSecret(t *testing.T) {
	svc, clock := newTestAuthService(t, "s3cret!")
	other := NewAuthService(&config.AuthConfig{JWTSecret: "other-secret", TokenTTLHours: 24}, zerolog.Nop()).
		WithClock(func() time.Time { return *clock })

	token, _, err := other.IssueToken()
	require.NoError(t, err)
	assert.False(t, svc.VerifyToken(token))
}

func TestAuthService_Login(t *testing.T) {
	svc, clock := newTestAuthService(t, "s3cret!")

	result, err := svc.Login("s3cret!")
	require.NoError(t, err)
	assert.True(t, svc.VerifyToken(result.Token))
	assert.Equal(t, clock.Add(24*time.Hour), result.ExpireAt)

	_, err = svc.Login("nope")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_LoginWithoutHash(t *testing.T) {
	svc := NewAuthService(&config.AuthConfig{JWTSecret: "x", TokenTTLHours: 24}, zerolog.Nop())

	_, err := svc.Login("")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
