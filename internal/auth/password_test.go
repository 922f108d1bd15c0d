package auth

import (
	"strings"
	"testing"
)

// newTestPasswordService returns a PasswordService with bcrypt cost 4,
// the minimum the library allows. Keeps each test in the millisecond range.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHash_ReturnsBcryptDigest(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	// bcrypt digests always start with $2a$ or $2b$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt digest: %q", hash)
	}
}

func TestHash_SamePasswordProducesDifferentDigests(t *testing.T) {
	ps := newTestPasswordService()

	// The salt is randomized per call, so two digests of the same
	// plaintext must differ; and both must still verify.
	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical digests for the same password")
	}
	if err := ps.Verify(hash1, "same-password"); err != nil {
		t.Errorf("Verify(hash1) = %v", err)
	}
	if err := ps.Verify(hash2, "same-password"); err != nil {
		t.Errorf("Verify(hash2) = %v", err)
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should reject passwords longer than 72 bytes")
	}
	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got: %v", err)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("the-real-password")

	if err := ps.Verify(hash, "the-wrong-password"); err == nil {
		t.Fatal("Verify() should return an error for a wrong password")
	}
}

func TestVerify_GarbageHash(t *testing.T) {
	ps := newTestPasswordService()

	if err := ps.Verify("not-a-valid-bcrypt-hash", "password"); err == nil {
		t.Fatal("Verify() should return an error for a garbage hash")
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "secret1"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "пароль-密码"},
		{"whitespace", "  leading and trailing  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ps.Hash(tc.password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}
			if err := ps.Verify(hash, tc.password); err != nil {
				t.Errorf("Verify() failed for %q: %v", tc.password, err)
			}
		})
	}
}
