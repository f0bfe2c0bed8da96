package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateToken("u-1", "a@b.c", "manager")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "u-1" || claims.Role != "manager" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTManagerRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, 24*time.Hour)
	other := NewJWTManager("other", time.Hour, 24*time.Hour)
	expired := NewJWTManager("secret", -time.Minute, -time.Minute)

	refresh, _ := m.GenerateRefreshToken("u-1")
	foreign, _ := other.GenerateToken("u-1", "", "officer")
	stale, _ := expired.GenerateToken("u-1", "", "officer")

	tests := []struct {
		name  string
		token string
	}{
		{"refresh token as access", refresh},
		{"wrong secret", foreign},
		{"expired", stale},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := m.ValidateRefreshToken(refresh); err != nil {
		t.Errorf("ValidateRefreshToken: %v", err)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("hunter2", hash) {
		t.Error("expected password to match")
	}
	if CheckPasswordHash("hunter3", hash) {
		t.Error("expected mismatch")
	}
}
