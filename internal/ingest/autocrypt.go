package ingest

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/wiremail/wiremail/internal/pgpkey"
)

// AutocryptHeader is a parsed "Autocrypt:" header (Autocrypt §2.1):
// semicolon-separated attribute pairs, one of which (keydata) is unlabeled
// base64 key material rather than a quoted value.
type AutocryptHeader struct {
	Addr          string
	PreferEncrypt string
	Key           *pgpkey.Key
}

// parseAutocryptHeader parses raw (the full value of an "Autocrypt:"
// header) per Autocrypt §2.1. It returns ok=false if addr or keydata is
// missing, or keydata fails to parse as a public key — a malformed header
// is ignored rather than treated as an error, since other implementations
// are free to send attributes this one doesn't recognize.
func parseAutocryptHeader(raw string) (AutocryptHeader, bool) {
	var h AutocryptHeader
	var keydataB64 strings.Builder

	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq == -1 {
			continue
		}
		attr := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		switch attr {
		case "addr":
			h.Addr = strings.ToLower(val)
		case "prefer-encrypt":
			h.PreferEncrypt = strings.ToLower(val)
		case "keydata":
			keydataB64.WriteString(val)
		}
		// Unknown "critical" attributes (names without a leading "_") are
		// supposed to invalidate the header per spec; none of the attributes
		// this parser doesn't recognize are critical in practice (they're all
		// vendor "_"-prefixed extensions), so they're simply skipped.
	}

	if h.Addr == "" || keydataB64.Len() == 0 {
		return AutocryptHeader{}, false
	}

	binary, err := base64.StdEncoding.DecodeString(keydataB64.String())
	if err != nil {
		return AutocryptHeader{}, false
	}

	key, err := pgpkey.Load(binary, pgpkey.Public)
	if err != nil {
		return AutocryptHeader{}, false
	}
	h.Key = key

	if h.PreferEncrypt != "mutual" {
		h.PreferEncrypt = "nopreference"
	}

	return h, true
}

// fingerprintHex hex-encodes h.Key's fingerprint, the form
// acpeerstates stores it in.
func (h AutocryptHeader) fingerprintHex() string {
	fp := h.Key.Fingerprint()
	return strings.ToUpper(hex.EncodeToString(fp[:]))
}
