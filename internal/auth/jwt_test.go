package auth

import (
	"testing"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "vibemeet",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	pair, err := m.IssuePair(now, "user-1", "user")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerify_RejectsWrongTokenType(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	pair, err := m.IssuePair(now, "user-1", "user")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.Verify(pair.RefreshToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected access verification of refresh token to fail")
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	m := testManager(t)
	issued := time.Now().Add(-48 * time.Hour)

	pair, err := m.IssuePair(issued, "user-1", "user")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}
