package security_test

import (
	"testing"

	"github.com/Rrens/chatvault/internal/security"
)

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	encryptor, err := security.NewEncryptorFromSecret("a session secret of any length")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"token", "ya29.a0AfB_byC-example-access-token"},
		{"unicode", "unicode: 日本語 中文 한국어"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := encryptor.Encrypt([]byte(tt.plaintext))
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}

			decrypted, err := encryptor.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}

			if string(decrypted) != tt.plaintext {
				t.Errorf("decrypted text does not match: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptor_DerivedKeysDiffer(t *testing.T) {
	a, _ := security.NewEncryptorFromSecret("secret-a")
	b, _ := security.NewEncryptorFromSecret("secret-b")

	ciphertext, err := a.Encrypt([]byte("token"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Error("expected decrypt with a different secret to fail")
	}
}

func TestEncryptor_InvalidInput(t *testing.T) {
	for _, n := range []int{0, 15, 17, 31, 33} {
		if _, err := security.NewEncryptor(make([]byte, n)); err == nil {
			t.Errorf("expected error for key length %d, got nil", n)
		}
	}

	if _, err := security.NewEncryptorFromSecret(""); err == nil {
		t.Error("expected error for empty secret")
	}

	encryptor, _ := security.NewEncryptor(make([]byte, 32))
	if _, err := encryptor.Decrypt([]byte("short")); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestEncryptor_DifferentCiphertexts(t *testing.T) {
	encryptor, _ := security.NewEncryptor(make([]byte, 32))
	plaintext := []byte("same plaintext")

	ciphertext1, _ := encryptor.Encrypt(plaintext)
	ciphertext2, _ := encryptor.Encrypt(plaintext)

	// Same plaintext should produce different ciphertexts (due to random nonce)
	if string(ciphertext1) == string(ciphertext2) {
		t.Error("expected different ciphertexts for same plaintext")
	}
}
