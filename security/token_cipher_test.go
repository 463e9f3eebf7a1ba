package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	cipher, err := NewTokenCipherFromString("unit-test-master-key")
	if err != nil {
		t.Fatalf("expected cipher to build: %v", err)
	}

	plaintext := []byte("ya29.a0AfH6SMB-access-token")
	sealed, err := cipher.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("ciphertext must not contain the plaintext token")
	}
	if !strings.HasPrefix(string(sealed), "workspace-sync.token.v1:") {
		t.Fatalf("expected envelope prefix, got %q", string(sealed[:30]))
	}

	opened, err := cipher.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestTokenCipherNonDeterministicNonce(t *testing.T) {
	cipher, err := NewTokenCipherFromString("unit-test-master-key")
	if err != nil {
		t.Fatalf("expected cipher to build: %v", err)
	}
	first, err := cipher.Encrypt(context.Background(), []byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	second, err := cipher.Encrypt(context.Background(), []byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestTokenCipherRejectsForeignKeyID(t *testing.T) {
	alpha, _ := NewTokenCipherFromString("key-material", WithKeyID("alpha"))
	beta, _ := NewTokenCipherFromString("key-material", WithKeyID("beta"))

	sealed, err := alpha.Encrypt(context.Background(), []byte("token"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := beta.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch to fail decryption")
	}
}

func TestTokenCipherRequiresKeyMaterial(t *testing.T) {
	if _, err := NewTokenCipher(nil); err == nil {
		t.Fatalf("expected empty key material to be rejected")
	}
	if _, err := NewTokenCipherFromString("   "); err == nil {
		t.Fatalf("expected blank key material to be rejected")
	}
}
