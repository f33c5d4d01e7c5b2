// Package pgpkey owns OpenPGP Key values: parsing binary transferable key
// material, computing fingerprints, and splitting a private key into its
// public half. It never performs encryption itself — that is the PGP
// engine's job (internal/pgp) — this package only knows how to load and
// validate key bytes.
package pgpkey

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// Kind distinguishes a public from a private transferable key.
type Kind int

const (
	Public Kind = iota
	Private
)

func (k Kind) String() string {
	if k == Private {
		return "private"
	}
	return "public"
}

// Key is a tagged OpenPGP transferable key: the raw binary form plus the
// parsed entity it decodes to.
type Key struct {
	Kind   Kind
	Binary []byte

	entity *openpgp.Entity
}

// Load parses binary (non-armored, framed OpenPGP packets) as a single
// transferable key of the declared kind.
func Load(binary []byte, kind Kind) (*Key, error) {
	if len(binary) == 0 {
		return nil, fmt.Errorf("pgpkey: empty key material")
	}

	entities, err := openpgp.ReadKeyRing(bytes.NewReader(binary))
	if err != nil {
		return nil, fmt.Errorf("pgpkey: parse key: %w", err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("pgpkey: no key found in material")
	}
	entity := entities[0]

	if kind == Private && entity.PrivateKey == nil {
		return nil, fmt.Errorf("pgpkey: expected private key but material has none")
	}

	return &Key{Kind: kind, Binary: append([]byte(nil), binary...), entity: entity}, nil
}

// Fingerprint returns the 20-byte fingerprint of the key. For a private key
// this is computed over its public half, as required by the spec.
func (k *Key) Fingerprint() [20]byte {
	return k.entity.PrimaryKey.Fingerprint
}

// SplitPublic returns the transferable public key embedded in a private Key.
// Calling SplitPublic on an already-public Key returns it unchanged.
func (k *Key) SplitPublic() (*Key, error) {
	if k.Kind == Public {
		return k, nil
	}

	var buf bytes.Buffer
	if err := k.entity.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("pgpkey: serialize public half: %w", err)
	}

	// Serialize on an entity with a PrivateKey still emits the public packet
	// sequence (signatures, subkeys) without secret material; re-parse to
	// hand back a Key whose entity has no PrivateKey attached.
	entities, err := openpgp.ReadKeyRing(bytes.NewReader(buf.Bytes()))
	if err != nil || len(entities) == 0 {
		return nil, fmt.Errorf("pgpkey: reparse public half: %w", err)
	}

	return &Key{Kind: Public, Binary: buf.Bytes(), entity: entities[0]}, nil
}

// IsValid reports whether the key's binary parses and matches its declared
// kind.
func (k *Key) IsValid() bool {
	if k == nil || k.entity == nil {
		return false
	}
	if k.Kind == Private && k.entity.PrivateKey == nil {
		return false
	}
	if k.Kind == Public && k.entity.PrivateKey != nil {
		return false
	}
	return true
}

// Entity exposes the parsed openpgp.Entity for collaborators (the PGP
// engine's keyring construction) that need it directly.
func (k *Key) Entity() *openpgp.Entity {
	return k.entity
}

// PrimaryEmail returns the email address of the first identity's user ID,
// or "" if none is present.
func (k *Key) PrimaryEmail() string {
	for _, ident := range k.entity.Identities {
		if ident.UserId != nil {
			return ident.UserId.Email
		}
	}
	return ""
}

// IsExpired reports whether the key's self-signature declares an expiry that
// has already passed. A key with expiry 0 (never) is never expired.
func (k *Key) IsExpired(now int64) bool {
	for _, ident := range k.entity.Identities {
		sig := ident.SelfSignature
		if sig == nil || sig.KeyLifetimeSecs == nil || *sig.KeyLifetimeSecs == 0 {
			continue
		}
		expiry := sig.CreationTime.Unix() + int64(*sig.KeyLifetimeSecs)
		if now >= expiry {
			return true
		}
	}
	return false
}

// Keyring is an ordered, non-unique sequence of keys — a short-lived
// argument to PGP engine operations, never persisted as its own value.
type Keyring []*Key

// EntityList adapts a Keyring to the openpgp.EntityList the underlying
// crypto library expects.
func (kr Keyring) EntityList() openpgp.EntityList {
	out := make(openpgp.EntityList, 0, len(kr))
	for _, k := range kr {
		if k != nil && k.entity != nil {
			out = append(out, k.entity)
		}
	}
	return out
}

// packetTag peeks the first packet of an unframed blob, which tells whether
// it looks like OpenPGP data before it is handed to Load. Nothing in the
// module calls it at present.
func packetTag(binary []byte) (packet.Packet, error) {
	r := packet.NewReader(bytes.NewReader(binary))
	return r.Next()
}
