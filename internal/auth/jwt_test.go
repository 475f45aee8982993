package auth

import (
	"testing"
	"time"
)

func TestSignedTokenRoundTrip(t *testing.T) {
	token, err := NewSignedToken("secret", "issuer", time.Minute, Claims{
		AccountID: "acct-1",
		Name:      "Ada",
		Role:      "user",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.AccountID != "acct-1" || claims.Name != "Ada" || claims.Role != "user" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims")
	}
	if claims.RefreshToken != "" {
		t.Fatalf("access claims should not carry a refresh token")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewSignedToken("secret", "issuer", time.Minute, Claims{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("expected signature verification to fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewSignedToken("secret", "issuer", -time.Minute, Claims{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
