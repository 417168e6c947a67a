package crypto

import (
	"errors"
	"testing"
)

func TestOpenStringRequiresMatchingScope(t *testing.T) {
	sealed, err := SealString("secret", "token-123", "service-a")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := OpenString("secret", sealed, "service-a")
	if err != nil || plain != "token-123" {
		t.Fatalf("open = %q, %v", plain, err)
	}
	if _, err := OpenString("secret", sealed, "service-b"); err == nil {
		t.Fatalf("expected scope mismatch to fail")
	}
	if _, err := OpenString("other", sealed, "service-a"); err == nil {
		t.Fatalf("expected key mismatch to fail")
	}
}

func TestHashPasswordBounds(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ComparePassword(hash, "correct horse"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hash, "wrong horse"); err == nil {
		t.Fatalf("expected mismatch")
	}
}
