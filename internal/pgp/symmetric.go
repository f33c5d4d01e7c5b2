package pgp

import (
	"bytes"
	"crypto"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// symmetricS2KCount is the iterated+salted S2K count corresponding to the
// single-byte coded iteration count 96 ( (16 + (c&15)) << ((c>>4)+6), c=96 ).
const symmetricS2KCount = 65536

func (e *Engine) symmetricConfig() *packet.Config {
	return &packet.Config{
		Rand:          rngReader,
		DefaultCipher: packet.CipherAES128,
		DefaultHash:   crypto.SHA256,
		S2KCount:      symmetricS2KCount,
	}
}

// SymmetricEncrypt password-encrypts plaintext for an Autocrypt Setup
// Message: a Tag 3 symmetric-key encrypted session key packet (S2K
// iterated+salted, SHA-256, AES-128) followed by a Tag 18 symmetrically
// encrypted integrity-protected data packet wrapping a binary literal data
// packet. The result is ASCII-armored.
func (e *Engine) SymmetricEncrypt(passphrase string, plaintext []byte) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("pgp: symmetric encrypt: empty passphrase")
	}

	var out bytes.Buffer
	aw, err := armor.Encode(&out, "PGP MESSAGE", nil)
	if err != nil {
		return "", fmt.Errorf("pgp: symmetric encrypt: open armor writer: %w", err)
	}

	w, err := openpgp.SymmetricallyEncrypt(aw, []byte(passphrase), &openpgp.FileHints{IsBinary: true}, e.symmetricConfig())
	if err != nil {
		return "", fmt.Errorf("pgp: symmetric encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("pgp: symmetric encrypt: write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("pgp: symmetric encrypt: close message: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("pgp: symmetric encrypt: close armor: %w", err)
	}

	return out.String(), nil
}

// SymmetricDecrypt inverts SymmetricEncrypt. data may be either an
// ASCII-armored message or a raw framed OpenPGP packet sequence.
func (e *Engine) SymmetricDecrypt(passphrase string, data []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("pgp: symmetric decrypt: empty passphrase")
	}

	r, err := symmetricDecryptReader(data)
	if err != nil {
		return nil, err
	}

	tried := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if tried {
			return nil, fmt.Errorf("pgp: symmetric decrypt: passphrase rejected")
		}
		tried = true
		return []byte(passphrase), nil
	}

	md, err := openpgp.ReadMessage(r, nil, prompt, e.symmetricConfig())
	if err != nil {
		return nil, fmt.Errorf("pgp: symmetric decrypt: %w", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("pgp: symmetric decrypt: read body: %w", err)
	}

	return plaintext, nil
}

// symmetricDecryptReader returns a reader over the binary OpenPGP packet
// stream, transparently de-armoring if data looks armored.
func symmetricDecryptReader(data []byte) (io.Reader, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		block, err := armor.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("pgp: symmetric decrypt: malformed armor: %w", err)
		}
		return block.Body, nil
	}
	return bytes.NewReader(data), nil
}
