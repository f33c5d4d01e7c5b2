package pgp

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/wiremail/wiremail/internal/pgpkey"
)

// Decrypt public-key decrypts ciphertext using decryptKeys (tried in order
// until one succeeds) and, if the message carries an embedded signature,
// verifies it against verifyKeys. The returned fingerprint slice holds the
// uppercase-hex fingerprint of every signer whose signature verified,
// deduplicated; a bad or unknown signature is simply omitted rather than
// failing the decrypt.
func (e *Engine) Decrypt(ciphertext []byte, decryptKeys, verifyKeys pgpkey.Keyring, useArmor bool) ([]byte, []string, error) {
	start := time.Now()

	if len(decryptKeys) == 0 {
		return nil, nil, fmt.Errorf("pgp: decrypt: no decryption keys provided")
	}

	r := io.Reader(bytes.NewReader(ciphertext))
	if useArmor {
		block, err := armor.Decode(r)
		if err != nil {
			return nil, nil, fmt.Errorf("pgp: decrypt: malformed armor: %w", err)
		}
		r = block.Body
	}

	keyring := make(pgpkey.Keyring, 0, len(decryptKeys)+len(verifyKeys))
	keyring = append(keyring, decryptKeys...)
	keyring = append(keyring, verifyKeys...)

	md, err := openpgp.ReadMessage(r, keyring.EntityList(), nil, e.config())
	if err != nil {
		return nil, nil, fmt.Errorf("pgp: decrypt: %w", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, nil, fmt.Errorf("pgp: decrypt: read body: %w", err)
	}

	var fingerprints []string
	if md.IsSigned && md.SignatureError == nil && md.SignedBy != nil {
		// The keyring handed to ReadMessage also holds decryptKeys; only a
		// signer whose primary key is in verifyKeys counts as verified.
		signerPrimary := md.SignedBy.Entity.PrimaryKey
		for _, k := range verifyKeys {
			if !k.IsValid() {
				continue
			}
			if bytes.Equal(k.Entity().PrimaryKey.Fingerprint[:], signerPrimary.Fingerprint[:]) {
				fp := hex.EncodeToString(md.SignedBy.PublicKey.Fingerprint[:])
				fingerprints = dedupFingerprint(nil, fp)
				break
			}
		}
	}

	e.log.Debug().
		Bool("signed", md.IsSigned).
		Int("verifiedSigners", len(fingerprints)).
		Dur("elapsed", time.Since(start)).
		Msg("pk_decrypt")

	return plaintext, fingerprints, nil
}

func dedupFingerprint(existing []string, fp string) []string {
	upper := toUpperHex(fp)
	for _, e := range existing {
		if e == upper {
			return existing
		}
	}
	return append(existing, upper)
}

func toUpperHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
