package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/events"
	"github.com/wiremail/wiremail/internal/store"
)

const selfAddress = "self@example.org"

func newTestSink(t *testing.T) (*Sink, *store.Store) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "wiremail.db"))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	s := store.New(db)
	if err := s.SetSelfAddr(selfAddress); err != nil {
		t.Fatalf("SetSelfAddr: %v", err)
	}
	return NewSink(s, func() string { return selfAddress }), s
}

type header struct{ key, value string }

func buildRaw(headers []header, body string) []byte {
	var b strings.Builder
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.key, h.value)
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func baseIncomingHeaders(msgID, from string, extra ...header) []header {
	h := []header{
		{"Return-Path", "<" + from + ">"},
		{"From", from},
		{"To", selfAddress},
		{"Message-ID", "<" + msgID + ">"},
		{"Date", "Mon, 02 Jan 2006 15:04:05 +0000"},
		{"Subject", "hi"},
		{"Content-Type", "text/plain; charset=utf-8"},
	}
	return append(h, extra...)
}

func TestReceiveIMFGroupCreationByChatGroupID(t *testing.T) {
	sk, s := newTestSink(t)

	name := "Sender"
	if _, err := s.AddOrLookupContact(&name, "sender@example.org", store.OriginIncomingTo); err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	raw := buildRaw(baseIncomingHeaders("m1@example.org", "sender@example.org",
		header{"Chat-Group-ID", "abcdefghij1"},
		header{"Chat-Group-Name", "Team"},
		header{"Chat-Version", "1.0"},
	), "hello team")

	evts, err := sk.ReceiveIMF(raw, "INBOX", 1, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}
	if len(evts) == 0 {
		t.Fatalf("expected at least one event")
	}

	chatID, found, err := s.LookupChatByGrpID("abcdefghij1")
	if err != nil || !found {
		t.Fatalf("expected new chat with grpid abcdefghij1: found=%v err=%v", found, err)
	}
	count, err := s.ChatContactCount(chatID)
	if err != nil {
		t.Fatalf("ChatContactCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 members, got %d", count)
	}
}

func TestReceiveIMFLeftGroupSuppression(t *testing.T) {
	sk, s := newTestSink(t)
	if err := s.MarkGroupLeft("abcdefghij1"); err != nil {
		t.Fatalf("MarkGroupLeft: %v", err)
	}

	raw := buildRaw(baseIncomingHeaders("m2@example.org", "sender@example.org",
		header{"Chat-Group-ID", "abcdefghij1"},
		header{"Chat-Group-Name", "Team"},
		header{"Chat-Version", "1.0"},
	), "hello again")

	if _, err := sk.ReceiveIMF(raw, "INBOX", 2, Flags{}); err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}

	if _, found, err := s.LookupChatByGrpID("abcdefghij1"); err != nil || found {
		t.Fatalf("expected no chat to be (re)created: found=%v err=%v", found, err)
	}
	if _, _, found, err := s.RFC724MidExists("m2@example.org"); err != nil || !found {
		t.Fatalf("expected the message to still be stored: found=%v err=%v", found, err)
	}
}

func TestReceiveIMFGhostRows(t *testing.T) {
	sk, s := newTestSink(t)

	raw := buildRaw([]header{
		{"From", selfAddress},
		{"To", "a@example.org, b@example.org"},
		{"Cc", "c@example.org"},
		{"Message-ID", "<out1@example.org>"},
		{"Date", "Mon, 02 Jan 2006 15:04:05 +0000"},
		{"Subject", "update"},
		{"Content-Type", "text/plain; charset=utf-8"},
	}, "a short outgoing message body")

	if _, err := sk.ReceiveIMF(raw, "Sent", 1, Flags{}); err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}

	folder, _, found, err := s.RFC724MidExists("out1@example.org")
	if err != nil || !found {
		t.Fatalf("expected primary message stored: found=%v err=%v", found, err)
	}
	if folder != "Sent" {
		t.Fatalf("unexpected folder: %q", folder)
	}

	if _, _, found, err := s.RFC724MidExists("G@1.1@wiremail"); err != nil || !found {
		t.Fatalf("expected first ghost row: found=%v err=%v", found, err)
	}
	if _, _, found, err := s.RFC724MidExists("G@1.2@wiremail"); err != nil || !found {
		t.Fatalf("expected second ghost row: found=%v err=%v", found, err)
	}
}

func TestReceiveIMFDeaddropGating(t *testing.T) {
	sk, s := newTestSink(t)
	if err := s.SetConfigInt(store.ConfigShowDeaddrop, 0); err != nil {
		t.Fatalf("SetConfigInt: %v", err)
	}

	raw := buildRaw(baseIncomingHeaders("m3@example.org", "stranger@example.org"), "first contact")

	evts, err := sk.ReceiveIMF(raw, "INBOX", 3, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}
	for _, e := range evts {
		if e.Code == events.IncomingMsg {
			t.Fatalf("expected no INCOMING_MSG event while show_deaddrop=0, got %+v", evts)
		}
	}

	if err := s.SetConfigInt(store.ConfigShowDeaddrop, 1); err != nil {
		t.Fatalf("SetConfigInt: %v", err)
	}
	raw2 := buildRaw(baseIncomingHeaders("m4@example.org", "stranger2@example.org"), "second contact")
	evts2, err := sk.ReceiveIMF(raw2, "INBOX", 4, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}
	found := false
	for _, e := range evts2 {
		if e.Code == events.IncomingMsg {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an INCOMING_MSG event while show_deaddrop=1, got %+v", evts2)
	}
}

func TestReceiveIMFMDNRouting(t *testing.T) {
	sk, s := newTestSink(t)

	sentName := "Recipient"
	recipientID, err := s.AddOrLookupContact(&sentName, "recipient@example.org", store.OriginOutgoingTo)
	if err != nil {
		t.Fatalf("AddOrLookupContact: %v", err)
	}
	chatID, err := s.CreateOrLookupNchatByContactID(recipientID)
	if err != nil {
		t.Fatalf("CreateOrLookupNchatByContactID: %v", err)
	}
	sentMsgID, err := s.InsertMessage(store.Message{
		RFC724MID: "abc@h", ChatID: chatID, FromID: store.ContactSelf, ToID: recipientID,
		Timestamp: 1000, Type: "text", State: store.StateOutDelivered, Txt: "hi",
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	body := "--b\r\nContent-Type: text/plain\r\n\r\nread\r\n" +
		"--b\r\nContent-Type: message/disposition-notification\r\n\r\n" +
		"Original-Message-ID: <abc@h>\r\nDisposition: manual-action/MDN-sent-manually; displayed\r\n\r\n" +
		"--b--\r\n"

	raw := buildRaw([]header{
		{"Return-Path", "<recipient@example.org>"},
		{"From", "recipient@example.org"},
		{"To", selfAddress},
		{"Message-ID", "<mdn1@example.org>"},
		{"Date", "Mon, 02 Jan 2006 15:04:05 +0000"},
		{"Subject", "Read receipt"},
		{"Content-Type", `multipart/report; report-type=disposition-notification; boundary="b"`},
	}, body)

	evts, err := sk.ReceiveIMF(raw, "INBOX", 5, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF: %v", err)
	}

	found := false
	for _, e := range evts {
		if e.Code == events.MsgRead && e.Data1 == chatID && e.Data2 == sentMsgID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MSG_READ(%d, %d), got %+v", chatID, sentMsgID, evts)
	}
}

func TestReceiveIMFIdempotent(t *testing.T) {
	sk, s := newTestSink(t)
	if err := s.SetConfigInt(store.ConfigShowDeaddrop, 1); err != nil {
		t.Fatalf("SetConfigInt: %v", err)
	}

	raw := buildRaw(baseIncomingHeaders("dup1@example.org", "sender@example.org"), "hello")

	evts1, err := sk.ReceiveIMF(raw, "INBOX", 10, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF (1st): %v", err)
	}
	if len(evts1) == 0 {
		t.Fatalf("expected events on first ingest")
	}

	evts2, err := sk.ReceiveIMF(raw, "INBOX", 11, Flags{})
	if err != nil {
		t.Fatalf("ReceiveIMF (2nd): %v", err)
	}
	if len(evts2) != 0 {
		t.Fatalf("expected zero events on duplicate ingest, got %+v", evts2)
	}
}
