package store

import (
	"database/sql"
	"fmt"
)

// Message is a row to be inserted into msgs, per the data model's
// immutable-after-insert fields.
type Message struct {
	RFC724MID    string
	ServerFolder string
	ServerUID    uint32
	ChatID       int64
	FromID       int64
	ToID         int64
	Timestamp    int64
	Type         string
	State        string
	IsMsgr       bool
	Txt          string
	TxtRaw       string
	Param        string
	Bytes        int
}

// RFC724MidExists reports whether a message with the given Message-ID
// already exists, returning its current folder/UID if so.
func (s *Store) RFC724MidExists(mid string) (folder string, uid uint32, found bool, err error) {
	err = s.queryRow(`SELECT server_folder, server_uid FROM msgs WHERE rfc724_mid = ?`, mid).Scan(&folder, &uid)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("store: rfc724_mid_exists: %w", err)
	}
	return folder, uid, true, nil
}

// UpdateServerUID updates the folder/UID of the message identified by mid.
func (s *Store) UpdateServerUID(mid, folder string, uid uint32) error {
	if _, err := s.exec(`UPDATE msgs SET server_folder = ?, server_uid = ? WHERE rfc724_mid = ?`, folder, uid, mid); err != nil {
		return fmt.Errorf("store: update_server_uid: %w", err)
	}
	return nil
}

// InsertMessage inserts a msgs row and returns its new id.
func (s *Store) InsertMessage(m Message) (int64, error) {
	res, err := s.exec(`
		INSERT INTO msgs (
			rfc724_mid, server_folder, server_uid, chat_id, from_id, to_id,
			timestamp, type, state, msgrmsg, txt, txt_raw, param, bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.RFC724MID, m.ServerFolder, m.ServerUID, m.ChatID, m.FromID, m.ToID,
		m.Timestamp, m.Type, m.State, boolToInt(m.IsMsgr), m.Txt, m.TxtRaw, m.Param, m.Bytes)
	if err != nil {
		return 0, fmt.Errorf("store: insert_message: %w", err)
	}
	return res.LastInsertId()
}

// GetMessage loads a msgs row by id, for the outgoing job drainer to
// recompose wire bytes from (the row's txt/txt_raw, not its original raw
// bytes, which are never stored per the data model).
func (s *Store) GetMessage(id int64) (Message, error) {
	var m Message
	err := s.queryRow(`
		SELECT rfc724_mid, server_folder, server_uid, chat_id, from_id, to_id,
			timestamp, type, state, msgrmsg, txt, txt_raw, param, bytes
		FROM msgs WHERE id = ?
	`, id).Scan(&m.RFC724MID, &m.ServerFolder, &m.ServerUID, &m.ChatID, &m.FromID, &m.ToID,
		&m.Timestamp, &m.Type, &m.State, &m.IsMsgr, &m.Txt, &m.TxtRaw, &m.Param, &m.Bytes)
	if err != nil {
		return Message{}, fmt.Errorf("store: get_message: %w", err)
	}
	return m, nil
}

// SetMessageState updates a message's delivery state (e.g. OUT_PENDING to
// OUT_DELIVERED once the SMTP collaborator confirms acceptance).
func (s *Store) SetMessageState(id int64, state string) error {
	if _, err := s.exec(`UPDATE msgs SET state = ? WHERE id = ?`, state, id); err != nil {
		return fmt.Errorf("store: set_message_state: %w", err)
	}
	return nil
}

// LastMsgTimestampInChatFromOther returns the highest timestamp of a
// message in chatID that was not sent by SELF, or 0 if there is none.
func (s *Store) LastMsgTimestampInChatFromOther(chatID int64) (int64, error) {
	var ts sql.NullInt64
	err := s.queryRow(`SELECT MAX(timestamp) FROM msgs WHERE chat_id = ? AND from_id != ?`, chatID, ContactSelf).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("store: last_msg_ts_in_chat_from_other_user: %w", err)
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// MessageIDExistsInRealChat reports whether rfc724Mid identifies an already
// stored message belonging to a non-special chat, or one sent by SELF — the
// reply-to-known-message detection used by the chat-selection fallback.
func (s *Store) MessageIDExistsInRealChat(rfc724Mid string) (bool, error) {
	var one int
	err := s.queryRow(`
		SELECT 1 FROM msgs
		WHERE rfc724_mid = ? AND (chat_id > ? OR from_id = ?)
		LIMIT 1
	`, rfc724Mid, ChatLastSpecial, ContactSelf).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: message_id_exists_in_real_chat: %w", err)
	}
	return true, nil
}

// MDNFromExt resolves an Original-Message-ID from an MDN report to the
// local chat/message it acknowledges, and marks that message OUT_READ.
func (s *Store) MDNFromExt(fromID int64, mid string) (chatID, msgID int64, found bool, err error) {
	err = s.queryRow(`
		SELECT chat_id, id FROM msgs
		WHERE rfc724_mid = ? AND from_id = ? AND to_id = ?
	`, mid, ContactSelf, fromID).Scan(&chatID, &msgID)
	if err == sql.ErrNoRows {
		// Fall back to matching the sent message by Message-ID alone: a
		// group MDN confirmation may come from a contact that was only a
		// Cc recipient and was not captured as msgs.to_id (to_id holds a
		// single primary recipient; see the ghost-row mechanism for the
		// others).
		err = s.queryRow(`
			SELECT chat_id, id FROM msgs
			WHERE rfc724_mid = ? AND from_id = ?
		`, mid, ContactSelf).Scan(&chatID, &msgID)
	}
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("store: mdn_from_ext: lookup: %w", err)
	}

	if _, err := s.exec(`UPDATE msgs SET state = ? WHERE id = ?`, StateOutRead, msgID); err != nil {
		return 0, 0, false, fmt.Errorf("store: mdn_from_ext: update state: %w", err)
	}

	return chatID, msgID, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
