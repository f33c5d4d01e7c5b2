package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// AddOrLookupContact finds a contact row by addr (case-insensitively
// normalized to lowercase), or inserts one. If the contact already exists
// its origin is raised to max(existing, origin) — origin is monotonically
// increasing and never downgraded — and, if displayName is non-empty and
// the row currently has no name, the name is set.
func (s *Store) AddOrLookupContact(displayName *string, addr string, origin int) (int64, error) {
	addr = normalizeAddr(addr)
	if addr == "" {
		return 0, fmt.Errorf("store: add_or_lookup_contact: empty address")
	}

	var id int64
	var existingOrigin int
	var existingName string
	err := s.queryRow(`SELECT id, origin, name FROM contacts WHERE addr = ?`, addr).Scan(&id, &existingOrigin, &existingName)
	switch {
	case err == sql.ErrNoRows:
		name := ""
		if displayName != nil {
			name = *displayName
		}
		res, err := s.exec(`INSERT INTO contacts (addr, name, origin, blocked) VALUES (?, ?, ?, 0)`, addr, name, origin)
		if err != nil {
			return 0, fmt.Errorf("store: add_or_lookup_contact: insert: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("store: add_or_lookup_contact: lookup: %w", err)
	}

	newOrigin := existingOrigin
	if origin > newOrigin {
		newOrigin = origin
	}
	newName := existingName
	if newName == "" && displayName != nil && *displayName != "" {
		newName = *displayName
	}
	if newOrigin != existingOrigin || newName != existingName {
		if _, err := s.exec(`UPDATE contacts SET origin = ?, name = ? WHERE id = ?`, newOrigin, newName, id); err != nil {
			return 0, fmt.Errorf("store: add_or_lookup_contact: update: %w", err)
		}
	}

	return id, nil
}

// IsKnownContact reports whether contactID is known and, separately,
// whether it is blocked. "Known" here means the address was seen via
// an outgoing message or an incoming To/Cc — i.e. origin above the
// unknown-from floor — matching the spec's incoming_from_known_sender use;
// a missing contact is neither known nor blocked.
func (s *Store) IsKnownContact(contactID int64) (known, blocked bool, err error) {
	var origin int
	var blockedInt int
	err = s.queryRow(`SELECT origin, blocked FROM contacts WHERE id = ?`, contactID).Scan(&origin, &blockedInt)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("store: is_known_contact: %w", err)
	}
	return origin > OriginIncomingUnknownFrom, blockedInt != 0, nil
}

// ContactAddr returns contactID's email address.
func (s *Store) ContactAddr(contactID int64) (string, error) {
	var addr string
	err := s.queryRow(`SELECT addr FROM contacts WHERE id = ?`, contactID).Scan(&addr)
	if err != nil {
		return "", fmt.Errorf("store: contact_addr: %w", err)
	}
	return addr, nil
}

// ContactAddrEquals reports whether contactID's address equals addr
// (case-insensitive).
func (s *Store) ContactAddrEquals(contactID int64, addr string) (bool, error) {
	var stored string
	err := s.queryRow(`SELECT addr FROM contacts WHERE id = ?`, contactID).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: contact_addr_equals: %w", err)
	}
	return stored == normalizeAddr(addr), nil
}

// SetSelfAddr updates the reserved SELF contact's address, used once at
// configure time (the migration seeds a placeholder so chats_contacts'
// foreign key constraint is satisfiable before any account exists).
func (s *Store) SetSelfAddr(addr string) error {
	if _, err := s.exec(`UPDATE contacts SET addr = ? WHERE id = ?`, normalizeAddr(addr), ContactSelf); err != nil {
		return fmt.Errorf("store: set_self_addr: %w", err)
	}
	return nil
}

func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
