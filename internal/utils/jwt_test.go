package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-testing")

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "admin", "admin", time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}

	if len(token) < 50 {
		t.Errorf("token seems too short: %d chars", len(token))
	}
}

func TestGenerateToken_EmptySecret(t *testing.T) {
	_, err := GenerateToken(nil, "admin", "admin", time.Now(), time.Hour)
	if !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestParseToken(t *testing.T) {
	now := time.Now()
	token, _ := GenerateToken(testSecret, "admin", "admin", now, 24*time.Hour)

	claims, err := ParseToken(testSecret, token, now)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "admin" {
		t.Errorf("Subject = %q, expected %q", claims.Subject, "admin")
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, expected %q", claims.Role, "admin")
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Unix() != now.Unix() {
		t.Errorf("IssuedAt = %v, expected %v", claims.IssuedAt, now)
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		_, err := ParseToken(testSecret, token, time.Now())
		if err == nil {
			t.Errorf("ParseToken(%q) should return error", token)
		}
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := GenerateToken([]byte("original-secret"), "admin", "admin", time.Now(), time.Hour)

	if _, err := ParseToken([]byte("different-secret"), token, time.Now()); err == nil {
		t.Error("ParseToken should fail with wrong secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	issued := time.Now()
	token, _ := GenerateToken(testSecret, "admin", "admin", issued, 24*time.Hour)

	if _, err := ParseToken(testSecret, token, issued.Add(24*time.Hour-time.Minute)); err != nil {
		t.Errorf("token should still be valid just before expiry: %v", err)
	}

	_, err := ParseToken(testSecret, token, issued.Add(24*time.Hour+time.Second))
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ParseToken(testSecret, unsigned, time.Now()); err == nil {
		t.Error("ParseToken should reject alg=none tokens")
	}
}

func TestGenerateToken_Expiration(t *testing.T) {
	now := time.Now()
	token, _ := GenerateToken(testSecret, "admin", "admin", now, time.Hour)
	claims, _ := ParseToken(testSecret, token, now)

	diff := claims.ExpiresAt.Time.Sub(now.Add(time.Hour))
	if diff < -time.Second || diff > time.Second {
		t.Errorf("expiration time is off by more than 1 second: %v", diff)
	}
}

func TestGenerateToken_DifferentSecrets(t *testing.T) {
	now := time.Now()
	token1, _ := GenerateToken([]byte("original"), "admin", "admin", now, time.Hour)
	token2, _ := GenerateToken([]byte("new-secret"), "admin", "admin", now, time.Hour)

	if token1 == token2 {
		t.Error("tokens generated with different secrets should be different")
	}
}
