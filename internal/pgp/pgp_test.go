package pgp

import (
	"bytes"
	"testing"

	"github.com/wiremail/wiremail/internal/pgpkey"
)

func generateTestKeypair(t *testing.T, addr string) (public, private *pgpkey.Key) {
	t.Helper()
	pub, priv, err := GenerateKeypair(addr)
	if err != nil {
		t.Fatalf("generate keypair for %s: %v", addr, err)
	}
	return pub, priv
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	_, alicePriv := generateTestKeypair(t, "alice@example.org")
	bobPub, bobPriv := generateTestKeypair(t, "bob@example.org")

	e := NewEngine()
	plaintext := []byte("the quick brown fox")

	ciphertext, err := e.Encrypt(plaintext, pgpkey.Keyring{bobPub}, alicePriv, true)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	alicePub, err := alicePriv.SplitPublic()
	if err != nil {
		t.Fatalf("split public: %v", err)
	}

	got, signers, err := e.Decrypt(ciphertext, pgpkey.Keyring{bobPriv}, pgpkey.Keyring{alicePub}, true)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted plaintext mismatch: got %q want %q", got, plaintext)
	}
	if len(signers) != 1 {
		t.Fatalf("expected exactly one verified signer, got %d", len(signers))
	}
}

func TestEncryptUnsigned(t *testing.T) {
	bobPub, bobPriv := generateTestKeypair(t, "bob@example.org")

	e := NewEngine()
	ciphertext, err := e.Encrypt([]byte("hello"), pgpkey.Keyring{bobPub}, nil, true)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, signers, err := e.Decrypt(ciphertext, pgpkey.Keyring{bobPriv}, nil, true)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("unexpected plaintext: %q", got)
	}
	if len(signers) != 0 {
		t.Fatalf("expected no signers on an unsigned message, got %d", len(signers))
	}
}

func TestEncryptNoRecipients(t *testing.T) {
	e := NewEngine()
	if _, err := e.Encrypt([]byte("x"), nil, nil, true); err == nil {
		t.Fatal("expected error encrypting with no recipients")
	}
}

func TestSymmetricRoundTrip(t *testing.T) {
	e := NewEngine()
	plaintext := []byte("setup message payload")

	armored, err := e.SymmetricEncrypt("0000-1111-2222-3333-4444-5555-6666-7777-8888-9999", plaintext)
	if err != nil {
		t.Fatalf("symmetric encrypt: %v", err)
	}

	got, err := e.SymmetricDecrypt("0000-1111-2222-3333-4444-5555-6666-7777-8888-9999", []byte(armored))
	if err != nil {
		t.Fatalf("symmetric decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("plaintext mismatch: got %q want %q", got, plaintext)
	}
}

func TestSymmetricWrongPassphrase(t *testing.T) {
	e := NewEngine()
	armored, err := e.SymmetricEncrypt("correct-horse", []byte("secret"))
	if err != nil {
		t.Fatalf("symmetric encrypt: %v", err)
	}
	if _, err := e.SymmetricDecrypt("wrong-horse", []byte(armored)); err == nil {
		t.Fatal("expected error decrypting with the wrong passphrase")
	}
}

func TestGenerateKeypairFingerprintConsistent(t *testing.T) {
	pub, priv, err := GenerateKeypair("carol@example.org")
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	if pub.Fingerprint() != priv.Fingerprint() {
		t.Fatal("public and private halves of a freshly generated keypair must share a fingerprint")
	}
	if priv.Kind != pgpkey.Private || pub.Kind != pgpkey.Public {
		t.Fatal("generated keys tagged with the wrong kind")
	}
}
