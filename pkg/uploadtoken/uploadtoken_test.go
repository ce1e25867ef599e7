package uploadtoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSignAndVerify(t *testing.T) {
	SetSecret("test-secret")
	uploadID := uuid.New()

	token, err := Sign(uploadID, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Verify(token, uploadID); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}

	t.Run("wrong id", func(t *testing.T) {
		if err := Verify(token, uuid.New()); err != ErrIDMismatch {
			t.Fatalf("expected ErrIDMismatch, got %v", err)
		}
	})

	t.Run("tampered signature", func(t *testing.T) {
		if err := Verify(token+"x", uploadID); err == nil {
			t.Fatal("expected an error for a tampered token")
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := Sign(uploadID, time.Now().UTC().Add(-time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := Verify(expired, uploadID); err != ErrExpired {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
	})

	t.Run("different secret", func(t *testing.T) {
		SetSecret("other-secret")
		defer SetSecret("test-secret")
		if err := Verify(token, uploadID); err == nil {
			t.Fatal("expected rejection under a different secret")
		}
	})
}
