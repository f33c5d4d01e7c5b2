package store

import (
	"database/sql"
	"fmt"
)

// PeerState is one acpeerstates row: what the ingestion pipeline has learned
// about a peer's Autocrypt capability from headers on mail it has sent.
type PeerState struct {
	Addr                string
	LastSeen            int64
	LastSeenAutocrypt   int64
	PublicKey           []byte
	Fingerprint         string
	PreferEncryptMutual bool
}

// UpsertPeerState records that an Autocrypt: header was seen from addr at
// timestamp now, updating its stored key and prefer-encrypt preference.
// last_seen is bumped on every call (any mail from addr counts, headered or
// not); last_seen_autocrypt only advances when an Autocrypt header was
// actually present, per Autocrypt §2.1's gossip-replay guidance.
func (s *Store) UpsertPeerState(addr string, now int64, publicKey []byte, fingerprint string, preferEncryptMutual bool) error {
	addr = normalizeAddr(addr)
	if addr == "" {
		return fmt.Errorf("store: upsert_peer_state: empty address")
	}
	preferEncrypt := "nopreference"
	if preferEncryptMutual {
		preferEncrypt = "mutual"
	}

	_, err := s.exec(`
		INSERT INTO acpeerstates (addr, last_seen, last_seen_autocrypt, public_key, fingerprint, prefer_encrypt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(addr) DO UPDATE SET
			last_seen = excluded.last_seen,
			last_seen_autocrypt = excluded.last_seen_autocrypt,
			public_key = excluded.public_key,
			fingerprint = excluded.fingerprint,
			prefer_encrypt = excluded.prefer_encrypt
	`, addr, now, now, publicKey, fingerprint, preferEncrypt)
	if err != nil {
		return fmt.Errorf("store: upsert_peer_state: %w", err)
	}
	return nil
}

// TouchPeerSeen bumps last_seen for addr without an Autocrypt header,
// inserting a bare row (no key yet known) if none exists.
func (s *Store) TouchPeerSeen(addr string, now int64) error {
	addr = normalizeAddr(addr)
	if addr == "" {
		return fmt.Errorf("store: touch_peer_seen: empty address")
	}
	_, err := s.exec(`
		INSERT INTO acpeerstates (addr, last_seen, last_seen_autocrypt, fingerprint, prefer_encrypt)
		VALUES (?, ?, 0, '', 'nopreference')
		ON CONFLICT(addr) DO UPDATE SET last_seen = excluded.last_seen
	`, addr, now)
	if err != nil {
		return fmt.Errorf("store: touch_peer_seen: %w", err)
	}
	return nil
}

// PeerState loads addr's acpeerstates row. ok is false if no row exists yet.
func (s *Store) PeerState(addr string) (state PeerState, ok bool, err error) {
	addr = normalizeAddr(addr)
	var prefer string
	row := s.queryRow(`
		SELECT addr, last_seen, last_seen_autocrypt, public_key, fingerprint, prefer_encrypt
		FROM acpeerstates WHERE addr = ?
	`, addr)
	serr := row.Scan(&state.Addr, &state.LastSeen, &state.LastSeenAutocrypt, &state.PublicKey, &state.Fingerprint, &prefer)
	if serr == sql.ErrNoRows {
		return PeerState{}, false, nil
	}
	if serr != nil {
		return PeerState{}, false, fmt.Errorf("store: peer_state: %w", serr)
	}
	state.PreferEncryptMutual = prefer == "mutual"
	return state, true, nil
}
