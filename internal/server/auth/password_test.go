package auth

import "testing"

func TestHashAndVerify_Success(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("p@ss")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if !VerifyPassword("p@ss", hash) {
		t.Fatalf("expected verification to succeed")
	}
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if VerifyPassword("wrong", hash) {
		t.Fatalf("expected verification to fail for wrong password")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if h1 == h2 {
		t.Fatalf("expected two hashes of the same plaintext to differ")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	if VerifyPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("expected verification to fail for malformed hash")
	}
}
