package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/config"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/pkg/crypto"
)

func testManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func testUser() *models.User {
	u := &models.User{
		Email:    "admin@example.com",
		IsAdmin:  true,
		IsActive: true,
	}
	u.ID = uuid.New()
	return u
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager()
	user := testUser()

	access, refresh, err := m.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("empty tokens")
	}

	claims, err := m.ValidateToken(access)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}

	userID, err := m.RefreshToken(refresh)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if userID != user.ID {
		t.Errorf("refresh subject = %s, want %s", userID, user.ID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := testManager()
	access, _, err := m.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "different-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if _, err := other.ValidateToken(access); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  -time.Minute,
		RefreshTokenTTL: -time.Minute,
	})

	access, refresh, err := m.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if _, err := m.ValidateToken(access); err == nil {
		t.Error("expired access token must not validate")
	}
	if _, err := m.RefreshToken(refresh); err == nil {
		t.Error("expired refresh token must not validate")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	if _, err := testManager().ValidateToken("not-a-token"); err == nil {
		t.Error("garbage token must not validate")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := crypto.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	m := testManager()
	if !m.VerifyPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if m.VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}
