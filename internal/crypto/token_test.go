package crypto

import (
	"encoding/hex"
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	token, err := NewOpaqueToken(40)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if len(token) != 80 {
		t.Fatalf("expected 80 hex chars, got %d", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	other, err := NewOpaqueToken(40)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatalf("two tokens should not collide")
	}
}
