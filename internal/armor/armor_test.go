package armor

import "testing"

func TestParseBasicBlock(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\nVersion: 1\nAutocrypt-Prefer-Encrypt: mutual\n\nAAAA\n-----END PGP MESSAGE-----\n")

	blk, ok := Parse(input)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if string(blk.HeaderLine) != "-----BEGIN PGP MESSAGE-----" {
		t.Errorf("header line = %q", blk.HeaderLine)
	}
	if string(blk.AutocryptPreferEncrypt) != "mutual" {
		t.Errorf("prefer-encrypt = %q", blk.AutocryptPreferEncrypt)
	}
	if string(blk.Base64) != "AAAA\n" {
		t.Errorf("base64 = %q", blk.Base64)
	}
}

func TestParseMismatchedTagsFails(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\n\nAAAA\n-----END PGP PRIVATE KEY BLOCK-----\n")
	if _, ok := Parse(input); ok {
		t.Fatalf("expected parse failure on mismatched BEGIN/END tags")
	}
}

func TestParseMissingEndFails(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\n\nAAAA\n")
	if _, ok := Parse(input); ok {
		t.Fatalf("expected parse failure with no END tag")
	}
}

func TestParseEmptyBodyFails(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\n\n-----END PGP MESSAGE-----\n")
	if _, ok := Parse(input); ok {
		t.Fatalf("expected parse failure on empty body")
	}
}

func TestParseHeaderWithoutColonTerminatesHeaders(t *testing.T) {
	// A header line with no ':' is tolerant-parsed as the first base64 line.
	input := []byte("-----BEGIN PGP MESSAGE-----\nAAAA\nBBBB\n-----END PGP MESSAGE-----\n")
	blk, ok := Parse(input)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if string(blk.Base64) != "AAAA\nBBBB\n" {
		t.Errorf("base64 = %q", blk.Base64)
	}
	if blk.PassphraseBegin != nil {
		t.Errorf("expected no Passphrase-Begin header")
	}
}

func TestParsePassphraseBeginHeader(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\nPassphrase-Begin: foo\n\nAAAA\n-----END PGP MESSAGE-----\n")
	blk, ok := Parse(input)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if string(blk.PassphraseBegin) != "foo" {
		t.Errorf("passphrase-begin = %q", blk.PassphraseBegin)
	}
}

func TestParseIgnoresUnknownHeaders(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\nVersion: 1\nComment: hello world\n\nAAAA\n-----END PGP MESSAGE-----\n")
	blk, ok := Parse(input)
	if !ok {
		t.Fatalf("expected successful parse despite unrecognised headers")
	}
	if string(blk.Base64) != "AAAA\n" {
		t.Errorf("base64 = %q", blk.Base64)
	}
}

func TestParseStripsCarriageReturns(t *testing.T) {
	input := []byte("-----BEGIN PGP MESSAGE-----\r\n\r\nAAAA\r\n-----END PGP MESSAGE-----\r\n")
	blk, ok := Parse(input)
	if !ok {
		t.Fatalf("expected successful parse with CRLF input")
	}
	if string(blk.Base64) != "AAAA\n" {
		t.Errorf("base64 = %q", blk.Base64)
	}
}
