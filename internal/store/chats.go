package store

import (
	"database/sql"
	"fmt"
)

// LookupChatByGrpID returns the chat id for grpid, if one exists.
func (s *Store) LookupChatByGrpID(grpid string) (int64, bool, error) {
	var id int64
	err := s.queryRow(`SELECT id FROM chats WHERE grpid = ?`, grpid).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: lookup_chat_by_grpid: %w", err)
	}
	return id, true, nil
}

// InsertChat inserts a new chat row and returns its id.
func (s *Store) InsertChat(chatType, name, grpid string) (int64, error) {
	var grpidVal interface{}
	if grpid != "" {
		grpidVal = grpid
	}
	res, err := s.exec(`INSERT INTO chats (type, name, grpid) VALUES (?, ?, ?)`, chatType, name, grpidVal)
	if err != nil {
		return 0, fmt.Errorf("store: insert_chat: %w", err)
	}
	return res.LastInsertId()
}

// IsContactInChat reports whether contactID is a member of chatID.
func (s *Store) IsContactInChat(chatID, contactID int64) (bool, error) {
	var one int
	err := s.queryRow(`SELECT 1 FROM chats_contacts WHERE chat_id = ? AND contact_id = ?`, chatID, contactID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is_contact_in_chat: %w", err)
	}
	return true, nil
}

// AddContactToChat adds contactID to chatID's membership, idempotently.
func (s *Store) AddContactToChat(chatID, contactID int64) error {
	if _, err := s.exec(`INSERT OR IGNORE INTO chats_contacts (chat_id, contact_id) VALUES (?, ?)`, chatID, contactID); err != nil {
		return fmt.Errorf("store: add_contact_to_chat: %w", err)
	}
	return nil
}

// ClearChatMembers removes all members of chatID.
func (s *Store) ClearChatMembers(chatID int64) error {
	if _, err := s.exec(`DELETE FROM chats_contacts WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("store: clear_chat_members: %w", err)
	}
	return nil
}

// ChatContactCount returns the number of members of chatID.
func (s *Store) ChatContactCount(chatID int64) (int, error) {
	var n int
	if err := s.queryRow(`SELECT COUNT(*) FROM chats_contacts WHERE chat_id = ?`, chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: chat_contact_count: %w", err)
	}
	return n, nil
}

// GroupIsExplicitlyLeft reports whether grpid is recorded in leftgrps.
func (s *Store) GroupIsExplicitlyLeft(grpid string) (bool, error) {
	var one int
	err := s.queryRow(`SELECT 1 FROM leftgrps WHERE grpid = ?`, grpid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: group_is_explicitly_left: %w", err)
	}
	return true, nil
}

// MarkGroupLeft records grpid as explicitly left by self.
func (s *Store) MarkGroupLeft(grpid string) error {
	if _, err := s.exec(`INSERT OR IGNORE INTO leftgrps (grpid) VALUES (?)`, grpid); err != nil {
		return fmt.Errorf("store: mark_group_left: %w", err)
	}
	return nil
}

// UnmarkGroupLeft clears grpid from leftgrps, used when self is explicitly
// re-added to a group it had left.
func (s *Store) UnmarkGroupLeft(grpid string) error {
	if _, err := s.exec(`DELETE FROM leftgrps WHERE grpid = ?`, grpid); err != nil {
		return fmt.Errorf("store: unmark_group_left: %w", err)
	}
	return nil
}

// RenameChat updates a chat's name.
func (s *Store) RenameChat(chatID int64, name string) error {
	if _, err := s.exec(`UPDATE chats SET name = ? WHERE id = ?`, name, chatID); err != nil {
		return fmt.Errorf("store: rename_chat: %w", err)
	}
	return nil
}

// LookupRealNchatByContactID returns the 1:1 (non-group) chat id for
// contactID, if one already exists.
func (s *Store) LookupRealNchatByContactID(contactID int64) (int64, bool, error) {
	var id int64
	err := s.queryRow(`
		SELECT c.id FROM chats c
		JOIN chats_contacts cc ON cc.chat_id = c.id
		WHERE c.type = 'single' AND c.id > ? AND cc.contact_id = ?
		LIMIT 1
	`, ChatLastSpecial, contactID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: lookup_real_nchat_by_contact_id: %w", err)
	}
	return id, true, nil
}

// CreateOrLookupNchatByContactID returns the 1:1 chat for contactID,
// creating it (with SELF and contactID as members) if absent.
func (s *Store) CreateOrLookupNchatByContactID(contactID int64) (int64, error) {
	if id, found, err := s.LookupRealNchatByContactID(contactID); err != nil {
		return 0, err
	} else if found {
		return id, nil
	}

	chatID, err := s.InsertChat("single", "", "")
	if err != nil {
		return 0, err
	}
	if err := s.AddContactToChat(chatID, ContactSelf); err != nil {
		return 0, err
	}
	if err := s.AddContactToChat(chatID, contactID); err != nil {
		return 0, err
	}
	return chatID, nil
}
