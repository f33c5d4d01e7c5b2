package groupid

import (
	"path/filepath"
	"testing"

	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "wiremail.db"))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	return store.New(db)
}

func TestGroupCreationByChatGroupID(t *testing.T) {
	s := newTestStore(t)
	name := "Sender"
	sender, err := s.AddOrLookupContact(&name, "sender@example.org", store.OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}

	result, err := Resolve(s, Input{
		Headers: Headers{
			GrpID1:  "abcdefghij1",
			GrpName: "Team",
		},
		CreateAsNeeded:    true,
		FromID:            sender,
		ToList:            []int64{store.ContactSelf},
		IsSendByMessenger: true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !result.Created || result.ChatID == 0 {
		t.Fatalf("expected a new chat to be created, got %+v", result)
	}

	count, err := s.ChatContactCount(result.ChatID)
	if err != nil {
		t.Fatalf("ChatContactCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 members (self + sender), got %d", count)
	}
	isMember, err := s.IsContactInChat(result.ChatID, store.ContactSelf)
	if err != nil || !isMember {
		t.Fatalf("expected self to be a member: %v %v", isMember, err)
	}
	isMember, err = s.IsContactInChat(result.ChatID, sender)
	if err != nil || !isMember {
		t.Fatalf("expected sender to be a member: %v %v", isMember, err)
	}
}

func TestLeftGroupSuppression(t *testing.T) {
	s := newTestStore(t)
	name := "Sender"
	sender, err := s.AddOrLookupContact(&name, "sender@example.org", store.OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}
	if err := s.MarkGroupLeft("abcdefghij1"); err != nil {
		t.Fatalf("MarkGroupLeft: %v", err)
	}

	result, err := Resolve(s, Input{
		Headers: Headers{
			GrpID1:  "abcdefghij1",
			GrpName: "Team",
			// No Added: self naming header, so the group is not resurrected.
		},
		CreateAsNeeded:    true,
		FromID:            sender,
		ToList:            []int64{store.ContactSelf},
		IsSendByMessenger: true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.ChatID != store.ChatTrash {
		t.Fatalf("expected chat_id=TRASH, got %+v", result)
	}
}

func TestGroupIDFromMessageIDPriority(t *testing.T) {
	h := Headers{
		GrpID2: ExtractGrpIDFromMessageID("Gr.abcdefghij1.12345@example.org"),
		GrpID3: "zzzzzzzzzzz",
	}
	if h.GrpID() != "abcdefghij1" {
		t.Fatalf("GrpID() = %q, want message-id-derived value to win over in-reply-to", h.GrpID())
	}
}

func TestNonMemberSenderDemotesToOneOnOne(t *testing.T) {
	s := newTestStore(t)
	memberName := "Member"
	member, err := s.AddOrLookupContact(&memberName, "member@example.org", store.OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}
	outsiderName := "Outsider"
	outsider, err := s.AddOrLookupContact(&outsiderName, "outsider@example.org", store.OriginIncomingUnknownFrom)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}

	chatID, err := s.InsertChat("group", "Team", "abcdefghij1")
	if err != nil {
		t.Fatalf("InsertChat: %v", err)
	}
	if err := s.AddContactToChat(chatID, store.ContactSelf); err != nil {
		t.Fatalf("AddContactToChat: %v", err)
	}
	if err := s.AddContactToChat(chatID, member); err != nil {
		t.Fatalf("AddContactToChat: %v", err)
	}

	result, err := Resolve(s, Input{
		Headers:        Headers{GrpID1: "abcdefghij1"},
		CreateAsNeeded: true,
		FromID:         outsider,
		ToList:         []int64{store.ContactSelf},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.ChatID != 0 {
		t.Fatalf("expected non-member sender to be routed away from the group chat, got %+v", result)
	}
}
