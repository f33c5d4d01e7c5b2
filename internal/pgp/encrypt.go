package pgp

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/logging"
	"github.com/wiremail/wiremail/internal/pgpkey"
)

// Engine groups the PGP operations (4.C) together so call sites can share
// one logger and one entropy-seeded config.
type Engine struct {
	log zerolog.Logger
}

// NewEngine returns a ready-to-use PGP engine.
func NewEngine() *Engine {
	return &Engine{log: logging.WithComponent("pgp")}
}

func (e *Engine) config() *packet.Config {
	return &packet.Config{Rand: rngReader}
}

// Encrypt public-key encrypts plaintext to recipients, optionally signing
// with signer first (sign-then-encrypt, one OpenPGP message). If useArmor
// is set the returned bytes are ASCII-armored; otherwise they are the raw
// binary OpenPGP message. This is Autocrypt's wire format, which is always
// armored in practice; every caller in the module passes useArmor=true.
func (e *Engine) Encrypt(plaintext []byte, recipients pgpkey.Keyring, signer *pgpkey.Key, useArmor bool) ([]byte, error) {
	start := time.Now()

	if len(recipients) == 0 {
		return nil, fmt.Errorf("pgp: encrypt: no recipient keys")
	}

	var signEntity *openpgp.Entity
	if signer != nil {
		if !signer.IsValid() || signer.Kind != pgpkey.Private {
			return nil, fmt.Errorf("pgp: encrypt: signing key is not a usable private key")
		}
		signEntity = signer.Entity()
	}

	var out bytes.Buffer
	var dest io.Writer = &out
	var armorCloser io.WriteCloser
	if useArmor {
		aw, err := armor.Encode(&out, "PGP MESSAGE", nil)
		if err != nil {
			return nil, fmt.Errorf("pgp: encrypt: open armor writer: %w", err)
		}
		armorCloser = aw
		dest = aw
	}

	w, err := openpgp.Encrypt(dest, recipients.EntityList(), signEntity, nil, e.config())
	if err != nil {
		return nil, fmt.Errorf("pgp: encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("pgp: encrypt: write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pgp: encrypt: close message: %w", err)
	}
	if armorCloser != nil {
		if err := armorCloser.Close(); err != nil {
			return nil, fmt.Errorf("pgp: encrypt: close armor: %w", err)
		}
	}

	e.log.Debug().
		Bool("signed", signEntity != nil).
		Int("recipients", len(recipients)).
		Dur("elapsed", time.Since(start)).
		Msg("pk_encrypt")

	return out.Bytes(), nil
}
