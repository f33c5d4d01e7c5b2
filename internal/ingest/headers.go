package ingest

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/wiremail/wiremail/internal/groupid"
)

var wordDecoder = &mime.WordDecoder{}

// headerValue looks up a header by new name, falling back to its legacy
// name, case-insensitively (message.Header.Get already folds case).
func (pm *ParsedMessage) headerValue(newName, legacyName string) string {
	if v := pm.Header.Get(newName); v != "" {
		return v
	}
	return pm.Header.Get(legacyName)
}

// decodeWord best-effort RFC 2047 decodes s, returning it unchanged if it is
// not encoded-word text or decoding fails.
func decodeWord(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil || decoded == "" {
		return s
	}
	return decoded
}

// GroupHeaders collects the group-related header fields in a single pass,
// per spec §4.F step 1.
func (pm *ParsedMessage) GroupHeaders() groupid.Headers {
	h := groupid.Headers{
		GrpID1:      pm.headerValue("Chat-Group-ID", "X-MrGrpId"),
		GrpName:     decodeWord(pm.headerValue("Chat-Group-Name", "X-MrGrpName")),
		Removed:     pm.headerValue("Chat-Group-Member-Removed", "X-MrRemoveFromGrp"),
		Added:       pm.headerValue("Chat-Group-Member-Added", "X-MrAddToGrp"),
		NameChanged: pm.headerValue("Chat-Group-Name-Changed", "X-MrGrpNameChanged") != "",
	}

	if mid := pm.Header.Get("Message-Id"); mid != "" {
		h.GrpID2 = groupid.ExtractGrpIDFromMessageID(mid)
	}
	if inReplyTo := pm.Header.Get("In-Reply-To"); inReplyTo != "" {
		h.GrpID3 = groupid.ExtractGrpIDFromList(inReplyTo)
	}
	if refs := pm.Header.Get("References"); refs != "" {
		h.GrpID4 = groupid.ExtractGrpIDFromList(refs)
	}

	return h
}

// Predecessors returns every referenced Message-ID this message carries via
// Chat-Predecessor/X-MrPredecessor, In-Reply-To, and References, used by the
// reply-to-known-message check (spec §4.E step 9).
func (pm *ParsedMessage) Predecessors() []string {
	var ids []string
	for _, raw := range []string{
		pm.headerValue("Chat-Predecessor", "X-MrPredecessor"),
		pm.Header.Get("In-Reply-To"),
		pm.Header.Get("References"),
	} {
		for _, f := range strings.Fields(raw) {
			id := strings.Trim(f, "<>")
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// HasReturnPath reports whether a Return-Path header is present, the
// direction signal per spec §4.E step 3.
func (pm *ParsedMessage) HasReturnPath() bool {
	return pm.Header.Get("Return-Path") != ""
}

// addressList returns the decoded mailbox list for a mail header field, or
// nil if absent or unparseable (malformed address headers are tolerated,
// not fatal, matching the ingestion pipeline's general leniency).
func addressList(mh *mail.Header, key string) []*mail.Address {
	addrs, err := mh.AddressList(key)
	if err != nil {
		return nil
	}
	return addrs
}

// From returns the decoded From: mailboxes, in header order.
func (pm *ParsedMessage) From() []*mail.Address { return addressList(pm.Mail, "From") }

// To returns the decoded To: mailboxes.
func (pm *ParsedMessage) To() []*mail.Address { return addressList(pm.Mail, "To") }

// Cc returns the decoded Cc: mailboxes.
func (pm *ParsedMessage) Cc() []*mail.Address { return addressList(pm.Mail, "Cc") }

// Bcc returns the decoded Bcc: mailboxes.
func (pm *ParsedMessage) Bcc() []*mail.Address { return addressList(pm.Mail, "Bcc") }

// MessageID returns the message's own Message-ID header value, with angle
// brackets stripped.
func (pm *ParsedMessage) MessageID() string {
	return strings.Trim(pm.Header.Get("Message-Id"), "<>")
}

// Date returns the parsed Date: header, or the zero value if absent or
// unparseable.
func (pm *ParsedMessage) Date() (unixSeconds int64, ok bool) {
	t, err := pm.Mail.Date()
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}
