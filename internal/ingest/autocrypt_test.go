package ingest

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/wiremail/wiremail/internal/pgp"
)

func TestParseAutocryptHeaderValid(t *testing.T) {
	pub, _, err := pgp.GenerateKeypair("alice@example.org")
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	keydata := base64.StdEncoding.EncodeToString(pub.Binary)

	raw := fmt.Sprintf("addr=alice@example.org; prefer-encrypt=mutual; keydata=%s", keydata)
	hdr, ok := parseAutocryptHeader(raw)
	if !ok {
		t.Fatal("expected header to parse")
	}
	if hdr.Addr != "alice@example.org" {
		t.Fatalf("addr = %q", hdr.Addr)
	}
	if hdr.PreferEncrypt != "mutual" {
		t.Fatalf("prefer-encrypt = %q", hdr.PreferEncrypt)
	}
	if hdr.Key.Fingerprint() != pub.Fingerprint() {
		t.Fatal("parsed key fingerprint doesn't match the original")
	}
	if hdr.fingerprintHex() == "" {
		t.Fatal("expected a non-empty fingerprint hex string")
	}
}

func TestParseAutocryptHeaderDefaultsToNoPreference(t *testing.T) {
	pub, _, err := pgp.GenerateKeypair("bob@example.org")
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	keydata := base64.StdEncoding.EncodeToString(pub.Binary)

	raw := fmt.Sprintf("addr=bob@example.org; keydata=%s", keydata)
	hdr, ok := parseAutocryptHeader(raw)
	if !ok {
		t.Fatal("expected header to parse")
	}
	if hdr.PreferEncrypt != "nopreference" {
		t.Fatalf("prefer-encrypt = %q, want nopreference", hdr.PreferEncrypt)
	}
}

func TestParseAutocryptHeaderMissingAddr(t *testing.T) {
	if _, ok := parseAutocryptHeader("prefer-encrypt=mutual; keydata=QUJD"); ok {
		t.Fatal("expected failure without addr")
	}
}

func TestParseAutocryptHeaderGarbageKeydata(t *testing.T) {
	if _, ok := parseAutocryptHeader("addr=carol@example.org; keydata=not-valid-base64!!"); ok {
		t.Fatal("expected failure on unparseable keydata")
	}
}
