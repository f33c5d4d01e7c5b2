package store

import (
	"path/filepath"
	"testing"

	"github.com/wiremail/wiremail/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "wiremail.db"))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}

	s := New(db)
	if _, err := s.exec(`UPDATE contacts SET addr = 'self@example.org', name = 'Self', origin = ? WHERE id = ?`, OriginOutgoingTo, ContactSelf); err != nil {
		t.Fatalf("seed self contact: %v", err)
	}
	return s
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetConfig("displayname"); err != nil || ok {
		t.Fatalf("expected unset config key, got ok=%v err=%v", ok, err)
	}

	if err := s.SetConfig(ConfigDisplayname, "Alice"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	got, ok, err := s.GetConfig(ConfigDisplayname)
	if err != nil || !ok || got != "Alice" {
		t.Fatalf("GetConfig = %q, %v, %v", got, ok, err)
	}

	if err := s.SetConfigInt(ConfigE2EEEnabled, 0); err != nil {
		t.Fatalf("SetConfigInt: %v", err)
	}
	n, err := s.GetConfigInt(ConfigE2EEEnabled, 1)
	if err != nil || n != 0 {
		t.Fatalf("GetConfigInt = %d, %v", n, err)
	}

	// Unset key falls back to the caller-supplied default.
	n, err = s.GetConfigInt("never_set", 42)
	if err != nil || n != 42 {
		t.Fatalf("GetConfigInt default = %d, %v", n, err)
	}
}

func TestAddOrLookupContactOriginNeverDowngrades(t *testing.T) {
	s := newTestStore(t)

	name := "Bob"
	id, err := s.AddOrLookupContact(&name, "Bob@Example.org", OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}

	id2, err := s.AddOrLookupContact(nil, "bob@example.org", OriginOutgoingTo)
	if err != nil {
		t.Fatalf("AddOrLookupContact (second): %v", err)
	}
	if id != id2 {
		t.Fatalf("expected same contact id for same normalized address, got %d and %d", id, id2)
	}

	known, blocked, err := s.IsKnownContact(id)
	if err != nil {
		t.Fatalf("IsKnownContact: %v", err)
	}
	if !known || blocked {
		t.Fatalf("expected known=true blocked=false after upgrade to OUTGOING_TO, got known=%v blocked=%v", known, blocked)
	}

	// A later lower-origin sighting must not downgrade the stored origin.
	if _, err := s.AddOrLookupContact(nil, "bob@example.org", OriginIncomingUnknownFrom); err != nil {
		t.Fatalf("AddOrLookupContact (downgrade attempt): %v", err)
	}
	known, _, err = s.IsKnownContact(id)
	if err != nil {
		t.Fatalf("IsKnownContact: %v", err)
	}
	if !known {
		t.Fatalf("origin must not be downgraded by a later, lower-ranked sighting")
	}
}

func TestGroupChatLifecycle(t *testing.T) {
	s := newTestStore(t)

	name := "Dave"
	dave, err := s.AddOrLookupContact(&name, "dave@example.org", OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}

	if _, found, err := s.LookupChatByGrpID("abcdefghij1"); err != nil || found {
		t.Fatalf("expected no chat for unknown grpid, found=%v err=%v", found, err)
	}

	chatID, err := s.InsertChat("group", "Team", "abcdefghij1")
	if err != nil {
		t.Fatalf("InsertChat: %v", err)
	}
	if err := s.AddContactToChat(chatID, ContactSelf); err != nil {
		t.Fatalf("AddContactToChat(self): %v", err)
	}
	if err := s.AddContactToChat(chatID, dave); err != nil {
		t.Fatalf("AddContactToChat(dave): %v", err)
	}

	count, err := s.ChatContactCount(chatID)
	if err != nil || count != 2 {
		t.Fatalf("ChatContactCount = %d, %v", count, err)
	}

	found, err := s.IsContactInChat(chatID, dave)
	if err != nil || !found {
		t.Fatalf("IsContactInChat = %v, %v", found, err)
	}

	if err := s.ClearChatMembers(chatID); err != nil {
		t.Fatalf("ClearChatMembers: %v", err)
	}
	count, err = s.ChatContactCount(chatID)
	if err != nil || count != 0 {
		t.Fatalf("ChatContactCount after clear = %d, %v", count, err)
	}
}

func TestMessageDedupAndMDN(t *testing.T) {
	s := newTestStore(t)

	name := "Eve"
	eve, err := s.AddOrLookupContact(&name, "eve@example.org", OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}
	chatID, err := s.CreateOrLookupNchatByContactID(eve)
	if err != nil {
		t.Fatalf("CreateOrLookupNchatByContactID: %v", err)
	}

	msgID, err := s.InsertMessage(Message{
		RFC724MID: "abc@example.org",
		ChatID:    chatID,
		FromID:    ContactSelf,
		ToID:      eve,
		Timestamp: 1000,
		Type:      "text",
		State:     StateOutPending,
		Txt:       "hi",
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	folder, uid, found, err := s.RFC724MidExists("abc@example.org")
	if err != nil || !found {
		t.Fatalf("RFC724MidExists: found=%v err=%v", found, err)
	}
	if folder != "" || uid != 0 {
		t.Fatalf("unexpected folder/uid before update: %q %d", folder, uid)
	}

	if err := s.UpdateServerUID("abc@example.org", "INBOX", 42); err != nil {
		t.Fatalf("UpdateServerUID: %v", err)
	}
	folder, uid, found, err = s.RFC724MidExists("abc@example.org")
	if err != nil || !found || folder != "INBOX" || uid != 42 {
		t.Fatalf("RFC724MidExists after update = %q %d %v %v", folder, uid, found, err)
	}

	gotChat, gotMsg, found, err := s.MDNFromExt(eve, "abc@example.org")
	if err != nil || !found || gotChat != chatID || gotMsg != msgID {
		t.Fatalf("MDNFromExt = %d %d %v %v, want %d %d true", gotChat, gotMsg, found, err, chatID, msgID)
	}
}
