package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/events"
	"github.com/wiremail/wiremail/internal/groupid"
	"github.com/wiremail/wiremail/internal/logging"
	"github.com/wiremail/wiremail/internal/store"
)

// Flags carries delivery metadata handed down from the IMAP collaborator.
type Flags struct {
	Seen bool
}

// Sink is the ingestion pipeline (component E). It owns no network
// connection of its own; ReceiveIMF only parses, classifies, resolves a
// chat, and persists, exactly the scope the pipeline is specified to cover.
type Sink struct {
	store    *store.Store
	smear    *Smearer
	selfAddr func() string
	log      zerolog.Logger
}

// NewSink builds a Sink. selfAddr is consulted lazily (not at construction
// time) so it reflects the mailbox's current configured address.
func NewSink(s *store.Store, selfAddr func() string) *Sink {
	return &Sink{store: s, smear: NewSmearer(), selfAddr: selfAddr, log: logging.WithComponent("ingest")}
}

// ReceiveIMF implements receive_imf: parse, classify, resolve the target
// chat, and persist atomically. It returns the events to emit — the caller
// must flush them only after this call returns, i.e. outside the lock this
// call itself already released.
func (sk *Sink) ReceiveIMF(raw []byte, serverFolder string, serverUID uint32, flags Flags) ([]events.Event, error) {
	pm, err := Parse(raw)
	if err != nil {
		sk.log.Debug().Err(err).Msg("receive_imf: no header, dropping")
		return nil, nil
	}

	sk.store.Lock()
	defer sk.store.Unlock()

	if err := sk.store.Begin(); err != nil {
		return nil, fmt.Errorf("ingest: receive_imf: begin: %w", err)
	}

	q, dup, err := sk.ingest(pm, serverFolder, serverUID, flags)
	if err != nil {
		_ = sk.store.Rollback()
		sk.log.Error().Err(err).Msg("receive_imf: ingestion failed, message dropped")
		return nil, nil
	}

	if dup != nil {
		_ = sk.store.Rollback()
		if err := sk.store.UpdateServerUID(dup.mid, dup.folder, dup.uid); err != nil {
			sk.log.Error().Err(err).Msg("receive_imf: duplicate, failed to update server uid")
		}
		return nil, nil
	}

	if err := sk.store.Commit(); err != nil {
		return nil, fmt.Errorf("ingest: receive_imf: commit: %w", err)
	}

	return q.pending, nil
}

// dupUpdate records a duplicate message's new (folder, uid), to be applied
// after the speculative transaction has been rolled back.
type dupUpdate struct {
	mid    string
	folder string
	uid    uint32
}

func (sk *Sink) ingest(pm *ParsedMessage, serverFolder string, serverUID uint32, flags Flags) (*events.Queue, *dupUpdate, error) {
	q := &events.Queue{}

	incoming := pm.HasReturnPath()

	// Step 4: resolve from_id.
	var fromID int64 = store.ContactSelf
	incomingFromKnownSender := false
	if incoming {
		froms := pm.From()
		if len(froms) == 0 {
			return nil, nil, fmt.Errorf("incoming message has no From address")
		}
		for i, a := range froms {
			id, err := sk.store.AddOrLookupContact(displayNamePtr(a.Name), a.Address, store.OriginIncomingUnknownFrom)
			if err != nil {
				return nil, nil, err
			}
			if i == 0 {
				fromID = id
			}
			if sk.selfAddr != nil && strings.EqualFold(a.Address, sk.selfAddr()) {
				incoming = false
			}
		}
		if incoming {
			known, blocked, err := sk.store.IsKnownContact(fromID)
			if err != nil {
				return nil, nil, err
			}
			incomingFromKnownSender = known && !blocked

			if err := sk.recordPeerState(pm, froms[0].Address); err != nil {
				return nil, nil, err
			}
		} else {
			fromID = store.ContactSelf
		}
	}

	// Step 5: gather recipients.
	var toList []int64
	if !incoming || incomingFromKnownSender {
		toOrigin, ccOrigin := store.OriginIncomingTo, store.OriginIncomingCC
		if !incoming {
			toOrigin, ccOrigin = store.OriginOutgoingTo, store.OriginOutgoingCC
		}
		for _, a := range pm.To() {
			id, err := sk.store.AddOrLookupContact(displayNamePtr(a.Name), a.Address, toOrigin)
			if err != nil {
				return nil, nil, err
			}
			toList = append(toList, id)
		}
		for _, a := range pm.Cc() {
			id, err := sk.store.AddOrLookupContact(displayNamePtr(a.Name), a.Address, ccOrigin)
			if err != nil {
				return nil, nil, err
			}
			toList = append(toList, id)
		}
		if !incoming {
			for _, a := range pm.Bcc() {
				id, err := sk.store.AddOrLookupContact(displayNamePtr(a.Name), a.Address, store.OriginOutgoingBCC)
				if err != nil {
					return nil, nil, err
				}
				toList = append(toList, id)
			}
		}
	}

	// Step 9 (computed early; pure read needed by step 8's fallback).
	isReplyToKnown := false
	for _, mid := range pm.Predecessors() {
		if ok, err := sk.store.MessageIDExistsInRealChat(mid); err != nil {
			return nil, nil, err
		} else if ok {
			isReplyToKnown = true
			break
		}
	}

	// Step 7: group resolution.
	createAsNeeded := !incoming
	if incoming {
		createAsNeeded = incomingFromKnownSender && pm.IsSendByMessenger
	}
	groupResult, err := groupid.Resolve(sk.store, groupid.Input{
		Headers:           pm.GroupHeaders(),
		CreateAsNeeded:    createAsNeeded,
		FromID:            fromID,
		ToList:            toList,
		IsSendByMessenger: pm.IsSendByMessenger,
	})
	if err != nil {
		return nil, nil, err
	}
	if groupResult.Renamed {
		q.Push(events.Event{Code: events.ChatModified, Data1: groupResult.ChatID})
	}

	// Step 8: chat selection fallback.
	chatID := groupResult.ChatID
	if chatID == 0 {
		if incoming {
			if id, found, err := sk.store.LookupRealNchatByContactID(fromID); err != nil {
				return nil, nil, err
			} else if found {
				chatID = id
			} else if pm.IsSendByMessenger {
				chatID, err = sk.store.CreateOrLookupNchatByContactID(fromID)
				if err != nil {
					return nil, nil, err
				}
			} else if isReplyToKnown {
				if len(pm.From()) > 0 {
					if _, err := sk.store.AddOrLookupContact(nil, pm.From()[0].Address, store.OriginIncomingReplyTo); err != nil {
						return nil, nil, err
					}
				}
				chatID, err = sk.store.CreateOrLookupNchatByContactID(fromID)
				if err != nil {
					return nil, nil, err
				}
			} else {
				chatID = store.ChatDeaddrop
			}
		} else {
			var primaryTo int64
			if len(toList) > 0 {
				primaryTo = toList[0]
			}
			switch {
			case primaryTo == 0:
				chatID = store.ChatToDeaddrop
			default:
				if id, found, err := sk.store.LookupRealNchatByContactID(primaryTo); err != nil {
					return nil, nil, err
				} else if found {
					chatID = id
				} else if pm.IsSendByMessenger {
					_, blocked, err := sk.store.IsKnownContact(primaryTo)
					if err != nil {
						return nil, nil, err
					}
					if blocked {
						chatID = store.ChatToDeaddrop
					} else {
						chatID, err = sk.store.CreateOrLookupNchatByContactID(primaryTo)
						if err != nil {
							return nil, nil, err
						}
					}
				} else {
					chatID = store.ChatToDeaddrop
				}
			}
		}
	}
	isGroup := groupResult.ChatID != 0

	// Step 10: timestamp correction.
	desired, ok := pm.Date()
	if !ok {
		desired = sk.smear.Now()
	}
	isFresh := incoming && !flags.Seen
	if isFresh {
		lastTs, err := sk.store.LastMsgTimestampInChatFromOther(chatID)
		if err != nil {
			return nil, nil, err
		}
		if lastTs+1 > desired {
			desired = lastTs + 1
		}
	}
	if desired >= sk.smear.Now() {
		desired = sk.smear.CreateSmearedTimestamp()
	}

	// Step 11: dedup.
	mid := pm.MessageID()
	if mid == "" {
		mid = synthesizeMessageID(desired, fromID, toList)
	}
	if _, _, found, err := sk.store.RFC724MidExists(mid); err != nil {
		return nil, nil, err
	} else if found {
		return nil, &dupUpdate{mid: mid, folder: serverFolder, uid: serverUID}, nil
	}

	// Step 12: insert parts.
	var firstID int64
	txtRawSet := false
	state := store.StateOutDelivered
	if incoming {
		if flags.Seen {
			state = store.StateInSeen
		} else {
			state = store.StateInFresh
		}
	}
	var primaryTo int64
	if len(toList) > 0 {
		primaryTo = toList[0]
	}
	for i, part := range pm.Parts {
		txt := ""
		txtRaw := ""
		msgType := classifyPartType(part.ContentType)
		if part.IsText {
			txt = strings.TrimSpace(string(part.Body))
			if !txtRawSet {
				txtRaw = pm.Subject + "\n\n" + string(part.Body)
				txtRawSet = true
			}
		}
		m := store.Message{
			RFC724MID:    mid,
			ServerFolder: serverFolder,
			ServerUID:    serverUID,
			ChatID:       chatID,
			FromID:       fromID,
			ToID:         primaryTo,
			Timestamp:    desired,
			Type:         msgType,
			State:        state,
			IsMsgr:       pm.IsSendByMessenger,
			Txt:          txt,
			TxtRaw:       txtRaw,
			Param:        "",
			Bytes:        len(part.Body),
		}
		id, err := sk.store.InsertMessage(m)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			firstID = id
		}
	}

	// Step 13: ghost rows.
	if !incoming && !isGroup && len(toList) >= 2 {
		summary := summarize(pm)
		for i, to := range toList[1:] {
			ghostMid := fmt.Sprintf("G@%d.%d@wiremail", firstID, i+1)
			ghostChat := store.ChatToDeaddrop
			if id, found, err := sk.store.LookupRealNchatByContactID(to); err != nil {
				return nil, nil, err
			} else if found {
				ghostChat = id
			}
			gm := store.Message{
				RFC724MID:    ghostMid,
				ServerFolder: serverFolder,
				ServerUID:    serverUID,
				ChatID:       ghostChat,
				FromID:       fromID,
				ToID:         to,
				Timestamp:    desired,
				Type:         "text",
				State:        store.StateOutDelivered,
				IsMsgr:       pm.IsSendByMessenger,
				Txt:          summary,
				TxtRaw:       summary,
				Param:        fmt.Sprintf("G=%d", firstID),
				Bytes:        len(summary),
			}
			if _, err := sk.store.InsertMessage(gm); err != nil {
				return nil, nil, err
			}
		}
	}

	// Step 14: event selection.
	if isFresh {
		_, blocked, err := sk.store.IsKnownContact(fromID)
		if err != nil {
			return nil, nil, err
		}
		if !blocked {
			fire := true
			if chatID == store.ChatDeaddrop {
				showDeaddrop, err := sk.store.GetConfigInt(store.ConfigShowDeaddrop, store.GetConfigIntDefault(store.ConfigShowDeaddrop))
				if err != nil {
					return nil, nil, err
				}
				fire = showDeaddrop != 0
			}
			if fire {
				q.Push(events.Event{Code: events.IncomingMsg, Data1: chatID, Data2: firstID})
			}
		}
	} else {
		q.Push(events.Event{Code: events.MsgsChanged})
	}

	// Step 15: MDN reports.
	mdnsEnabled, err := sk.store.GetConfigInt(store.ConfigMDNsEnabled, store.GetConfigIntDefault(store.ConfigMDNsEnabled))
	if err != nil {
		return nil, nil, err
	}
	if mdnsEnabled != 0 {
		for _, r := range pm.Reports {
			if r.OriginalMessageID == "" {
				continue
			}
			mdnChatID, mdnMsgID, found, err := sk.store.MDNFromExt(fromID, r.OriginalMessageID)
			if err != nil {
				return nil, nil, err
			}
			if found {
				q.Push(events.Event{Code: events.MsgRead, Data1: mdnChatID, Data2: mdnMsgID})
			}
		}
	}

	return q, nil, nil
}

// recordPeerState updates acpeerstates for an incoming message's sender,
// per the acpeerstates bookkeeping described in SPEC_FULL section 3:
// every incoming message bumps last_seen, and a parseable
// Autocrypt: header additionally refreshes the stored key and preference.
func (sk *Sink) recordPeerState(pm *ParsedMessage, fromAddr string) error {
	now, ok := pm.Date()
	if !ok {
		now = sk.smear.CreateSmearedTimestamp()
	}

	raw := pm.Header.Get("Autocrypt")
	if raw == "" {
		return sk.store.TouchPeerSeen(fromAddr, now)
	}

	hdr, ok := parseAutocryptHeader(raw)
	if !ok || !strings.EqualFold(hdr.Addr, fromAddr) {
		// Malformed, or addr doesn't match the envelope From (Autocrypt
		// §2.1 requires they match) — ignore the header, still record the
		// plain sighting.
		sk.log.Debug().Str("from", fromAddr).Msg("receive_imf: ignoring unusable autocrypt header")
		return sk.store.TouchPeerSeen(fromAddr, now)
	}

	return sk.store.UpsertPeerState(fromAddr, now, hdr.Key.Binary, hdr.fingerprintHex(), hdr.PreferEncrypt == "mutual")
}

func displayNamePtr(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

// synthesizeMessageID deterministically derives an rfc724_mid for a message
// that arrived without a Message-ID, from its timestamp, sender, and sorted
// recipient list.
func synthesizeMessageID(ts, fromID int64, toList []int64) string {
	sorted := append([]int64(nil), toList...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%v", ts, fromID, sorted)
	return hex.EncodeToString(h.Sum(nil))[:24] + "@wiremail.synthetic"
}

func classifyPartType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return "text"
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "file"
	}
}

// summarize builds the short per-recipient ghost-row summary text, mirroring
// what a conventional mail client shows in a per-recipient sent folder.
func summarize(pm *ParsedMessage) string {
	text := strings.TrimSpace(pm.FirstTextBody)
	if text == "" {
		text = pm.Subject
	}
	const maxLen = 80
	if len(text) > maxLen {
		text = text[:maxLen] + "…"
	}
	return text
}
