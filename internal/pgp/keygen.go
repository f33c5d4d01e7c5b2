package pgp

import (
	"bytes"
	"crypto"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/wiremail/wiremail/internal/pgpkey"
)

// KeygenBits is the RSA modulus size used for both the primary signing key
// and the encryption subkey. Matches Autocrypt level-1 expectations.
const KeygenBits = 2048

// GenerateKeypair builds a primary signing/certifying key plus an
// encryption subkey for addr, each bound by a self-signature, and returns
// the serialized transferable public and private keys. The only preferences
// set are those of the packet.Config below (AES-256 as default cipher,
// SHA-256 as default hash); the self-signatures carry whatever preference
// lists openpgp.NewEntity derives from that config. No CAST5 or 3DES cipher
// preference, SHA-1 hash preference or ZLIB compression preference is set
// here.
//
// SeedRNG should be called with fresh entropy before invoking this, per the
// rand-seeding hook described for mailbox construction.
func GenerateKeypair(addr string) (public, private *pgpkey.Key, err error) {
	cfg := &packet.Config{
		Rand:          rngReader,
		RSABits:       KeygenBits,
		DefaultHash:   crypto.SHA256,
		DefaultCipher: packet.CipherAES256,
	}

	entity, err := openpgp.NewEntity("", "", addr, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgp: generate entity: %w", err)
	}

	// openpgp.NewEntity already attaches one encryption subkey with binding
	// signature and primary self-signature carrying the library's preferences
	// for cfg; the spec's "never expire" requirement is the default
	// (KeyLifetimeSecs is left nil/zero).

	var privBuf bytes.Buffer
	if err := entity.SerializePrivate(&privBuf, cfg); err != nil {
		return nil, nil, fmt.Errorf("pgp: serialize private key: %w", err)
	}

	var pubBuf bytes.Buffer
	if err := entity.Serialize(&pubBuf); err != nil {
		return nil, nil, fmt.Errorf("pgp: serialize public key: %w", err)
	}

	priv, err := pgpkey.Load(privBuf.Bytes(), pgpkey.Private)
	if err != nil {
		return nil, nil, fmt.Errorf("pgp: reload generated private key: %w", err)
	}
	pub, err := pgpkey.Load(pubBuf.Bytes(), pgpkey.Public)
	if err != nil {
		return nil, nil, fmt.Errorf("pgp: reload generated public key: %w", err)
	}

	return pub, priv, nil
}
