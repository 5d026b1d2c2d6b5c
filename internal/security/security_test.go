package security

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to be rejected")
	}
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	signer, err := NewTokenSigner("secret", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign(7, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.SessionID != 42 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenSigner_RejectsForeignAndExpired(t *testing.T) {
	signer, _ := NewTokenSigner("secret", time.Hour)
	other, _ := NewTokenSigner("other", time.Hour)

	token, _ := other.Sign(1, 1)
	if _, err := signer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign key, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	signer.now = func() time.Time { return past }
	expired, _ := signer.Sign(1, 1)
	signer.now = time.Now
	if _, err := signer.Parse(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	if _, err := signer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}
