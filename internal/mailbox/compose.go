package mailbox

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/wiremail/wiremail/internal/store"
)

// composeMessage builds a plain RFC 5322 message carrying a previously
// inserted msgs row's text, mirroring the field layout ingest.Parse expects
// to find on the way back in (so a self-sent message round-trips cleanly
// through receive_imf on a multi-device mailbox).
func composeMessage(from, to string, msg store.Message) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("mailbox: compose: parse from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("mailbox: compose: parse to address: %w", err)
	}

	var h mail.Header
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetDate(time.Unix(msg.Timestamp, 0))
	if msg.RFC724MID != "" {
		h.SetMessageID(msg.RFC724MID)
	}
	if msg.IsMsgr {
		h.Set("Chat-Version", "1.0")
	}

	var buf bytes.Buffer
	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("mailbox: compose: create writer: %w", err)
	}

	partWriter, err := w.CreateSingleInlineWriter()
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("mailbox: compose: create inline writer: %w", err)
	}
	if _, err := partWriter.Write([]byte(msg.Txt)); err != nil {
		partWriter.Close()
		w.Close()
		return nil, fmt.Errorf("mailbox: compose: write body: %w", err)
	}
	if err := partWriter.Close(); err != nil {
		w.Close()
		return nil, fmt.Errorf("mailbox: compose: close inline writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mailbox: compose: close writer: %w", err)
	}

	return buf.Bytes(), nil
}
