// Package ingest implements the ingestion pipeline (component E):
// receive_imf parses a raw IMF/MIME blob, classifies it, resolves the
// target chat, and persists it atomically. The MIME parsing itself is
// delegated to github.com/emersion/go-message, the out-of-scope collaborator
// named in the overview — this package only shapes its output into what the
// rest of the pipeline needs.
package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers non-UTF-8 charset decoding
	"github.com/emersion/go-message/mail"
)

// Part is one MIME body part surfaced to the pipeline.
type Part struct {
	ContentType string
	IsText      bool
	Filename    string
	Body        []byte
}

// Report is a disposition-notification (MDN) sub-part found inside a
// multipart/report.
type Report struct {
	OriginalMessageID string
}

// ParsedMessage is the MIME collaborator's output, per spec §4.E step 1.
type ParsedMessage struct {
	Header            message.Header
	Mail              *mail.Header
	Parts             []Part
	Reports           []Report
	IsSendByMessenger bool
	Subject           string
	// FirstTextBody is the raw body of the first text/* part found,
	// used to build txt_raw (subject + "\n\n" + raw_body).
	FirstTextBody string
}

// Parse parses raw as an RFC 5322 message with MIME parts. It returns an
// error only when no header at all could be recovered — malformed but
// present headers are tolerated, matching the "abort silently if no
// header" contract.
func Parse(raw []byte) (*ParsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if entity == nil {
		return nil, fmt.Errorf("ingest: parse: no header recovered: %w", err)
	}

	mh := &mail.Header{Header: entity.Header}
	subject, _ := mh.Subject()

	pm := &ParsedMessage{
		Header:            entity.Header,
		Mail:              mh,
		IsSendByMessenger: entity.Header.Get("Chat-Version") != "",
		Subject:           subject,
	}

	walkParts(pm, entity)

	return pm, nil
}

func walkParts(pm *ParsedMessage, entity *message.Entity) {
	mr := entity.MultipartReader()
	if mr == nil {
		pm.addPart(entity)
		return
	}

	mediaType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	isReport := strings.EqualFold(mediaType, "multipart/report") &&
		strings.EqualFold(params["report-type"], "disposition-notification")

	var subEntities []*message.Entity
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		subEntities = append(subEntities, part)
	}

	if isReport && len(subEntities) >= 2 {
		if mid := extractOriginalMessageID(subEntities[1]); mid != "" {
			pm.Reports = append(pm.Reports, Report{OriginalMessageID: mid})
		}
	}

	for _, sub := range subEntities {
		if sub.MultipartReader() != nil {
			walkParts(pm, sub)
			continue
		}
		pm.addPart(sub)
	}
}

func (pm *ParsedMessage) addPart(entity *message.Entity) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = "text/plain"
	}

	body, _ := io.ReadAll(entity.Body)

	part := Part{
		ContentType: contentType,
		IsText:      strings.HasPrefix(contentType, "text/"),
		Filename:    attachmentFilename(entity, params),
		Body:        body,
	}
	pm.Parts = append(pm.Parts, part)

	if part.IsText && pm.FirstTextBody == "" {
		pm.FirstTextBody = string(body)
	}
}

func attachmentFilename(entity *message.Entity, contentTypeParams map[string]string) string {
	if disp, dispParams, err := mime.ParseMediaType(entity.Header.Get("Content-Disposition")); err == nil && disp != "" {
		if name, ok := dispParams["filename"]; ok && name != "" {
			return name
		}
	}
	if name, ok := contentTypeParams["name"]; ok {
		return name
	}
	return ""
}

// extractOriginalMessageID parses a message/disposition-notification
// sub-part and returns its Original-Message-ID field with the angle
// brackets stripped, the form message ids are stored in.
func extractOriginalMessageID(entity *message.Entity) string {
	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return ""
	}
	inner, err := message.Read(bytes.NewReader(body))
	if inner == nil {
		// message/disposition-notification bodies are themselves a small
		// RFC 5322-style header block, not a full message — fall back to
		// reading it directly as a header.
		h, readErr := message.ReadHeader(bufio.NewReader(bytes.NewReader(body)))
		if readErr != nil {
			return ""
		}
		return strings.Trim(h.Get("Original-Message-ID"), "<>")
	}
	_ = err
	return strings.Trim(inner.Header.Get("Original-Message-ID"), "<>")
}
