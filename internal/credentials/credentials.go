// Package credentials stores IMAP/SMTP passwords and the cached Autocrypt
// Setup Message passphrase. It prefers the OS keyring and falls back to a
// database-resident ciphertext, sealed with the PGP engine's own symmetric
// cipher, when no keyring is available (headless/container deployments).
package credentials

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"

	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/logging"
	"github.com/wiremail/wiremail/internal/pgp"
)

// service namespaces this mailbox's keyring entries from any other
// application using the same OS keyring.
const service = "wiremail"

// Store persists secrets, trying the OS keyring first and falling back to
// an encrypted row in the secrets table.
type Store struct {
	db            *database.DB
	engine        *pgp.Engine
	fallbackKey   string
	log           zerolog.Logger
	keyringFailed bool
}

// New builds a credentials store. fallbackKey seals the DB-fallback path;
// wiremaild passes the secret it was handed (WIREMAIL_SECRET, or a fixed
// development value when that is unset) through mailbox.Open unchanged.
func New(db *database.DB, fallbackKey string) *Store {
	return &Store{
		db:          db,
		engine:      pgp.NewEngine(),
		fallbackKey: fallbackKey,
		log:         logging.WithComponent("credentials"),
	}
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	if err := keyring.Set(service, key, value); err == nil {
		return nil
	} else {
		s.log.Debug().Err(err).Str("key", key).Msg("keyring unavailable, falling back to encrypted db storage")
		s.keyringFailed = true
	}
	return s.setFallback(key, value)
}

// Get retrieves value for key, trying the OS keyring first.
func (s *Store) Get(key string) (string, error) {
	if !s.keyringFailed {
		if value, err := keyring.Get(service, key); err == nil {
			return value, nil
		} else if err != keyring.ErrNotFound {
			s.log.Debug().Err(err).Str("key", key).Msg("keyring read failed, falling back to encrypted db storage")
			s.keyringFailed = true
		} else {
			return "", err
		}
	}
	return s.getFallback(key)
}

// Delete removes key from wherever it is stored.
func (s *Store) Delete(key string) error {
	_ = keyring.Delete(service, key)
	if _, err := s.db.Exec(`DELETE FROM secrets WHERE keyname = ?`, key); err != nil {
		return fmt.Errorf("credentials: delete: %w", err)
	}
	return nil
}

func (s *Store) setFallback(key, value string) error {
	armored, err := s.engine.SymmetricEncrypt(s.fallbackKey, []byte(value))
	if err != nil {
		return fmt.Errorf("credentials: seal: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO secrets (keyname, ciphertext) VALUES (?, ?)
		ON CONFLICT(keyname) DO UPDATE SET ciphertext = excluded.ciphertext
	`, key, []byte(armored))
	if err != nil {
		return fmt.Errorf("credentials: set_fallback: %w", err)
	}
	return nil
}

func (s *Store) getFallback(key string) (string, error) {
	var ciphertext []byte
	err := s.db.QueryRow(`SELECT ciphertext FROM secrets WHERE keyname = ?`, key).Scan(&ciphertext)
	if err != nil {
		return "", fmt.Errorf("credentials: get_fallback: %w", err)
	}
	plaintext, err := s.engine.SymmetricDecrypt(s.fallbackKey, ciphertext)
	if err != nil {
		return "", fmt.Errorf("credentials: unseal: %w", err)
	}
	return string(plaintext), nil
}
