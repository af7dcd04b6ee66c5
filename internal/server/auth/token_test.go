package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	svc := NewTokenService([]byte("super-secret"), time.Hour)

	tok, err := svc.Issue(42, "alice", "Admin")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("subject mismatch: got %q want %q", claims.Subject, "42")
	}
	if claims.Username != "alice" {
		t.Fatalf("username mismatch: got %q want %q", claims.Username, "alice")
	}
	if claims.Role != "Admin" {
		t.Fatalf("role mismatch: got %q want %q", claims.Role, "Admin")
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	svc := NewTokenService([]byte("secret"), -1*time.Second)

	tok, err := svc.Issue(1, "u1", "Staff")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = svc.Verify(tok)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewTokenService([]byte("right-secret"), time.Hour)
	verifier := NewTokenService([]byte("wrong-secret"), time.Hour)

	tok, err := issuer.Issue(2, "u2", "Staff")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = verifier.Verify(tok)
	if !errors.Is(err, ErrTokenSignatureInvalid) {
		t.Fatalf("expected ErrTokenSignatureInvalid, got %v", err)
	}
}

func TestVerify_MalformedString(t *testing.T) {
	t.Parallel()

	svc := NewTokenService([]byte("k"), time.Hour)

	_, err := svc.Verify("not.a.jwt")
	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}
