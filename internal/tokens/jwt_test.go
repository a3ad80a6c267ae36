package tokens_test

import (
	"testing"
	"time"

	"github.com/technosupport/ts-evcam/internal/tokens"
)

func TestTokenGeneration(t *testing.T) {
	mgr := tokens.NewManager("test-secret-key", time.Hour)
	userID := "user-123"

	token, err := mgr.GenerateToken(userID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("Expected UserID %s, got %s", userID, claims.UserID)
	}
	if claims.Subject != userID {
		t.Errorf("Expected Subject %s, got %s", userID, claims.Subject)
	}
}

func TestInvalidSignature(t *testing.T) {
	mgr1 := tokens.NewManager("secret-1", time.Hour)
	mgr2 := tokens.NewManager("secret-2", time.Hour)

	token, _ := mgr1.GenerateToken("u1")
	_, err := mgr2.ValidateToken(token)
	if err == nil {
		t.Error("Expected validation error for wrong signature")
	}
}

func TestExpiredToken(t *testing.T) {
	mgr := tokens.NewManager("test-secret-key", -time.Minute)

	token, err := mgr.GenerateToken("u1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("Expected validation error for expired token")
	}
}
