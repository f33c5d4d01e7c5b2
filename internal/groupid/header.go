// Package groupid implements the group-ID resolver (component F): mapping
// a parsed message's headers to an existing chat, creating new chats, and
// rewriting member lists from Added/Removed hints.
package groupid

import "regexp"

// ValidIDLen is the fixed length of a group id as embedded in a
// "Gr.<id>.…@…" Message-ID.
const ValidIDLen = 11

var grMessageID = regexp.MustCompile(`Gr\.([A-Za-z0-9]{11})\.`)

// ExtractGrpIDFromMessageID returns the grpid embedded in a Message-ID (or
// an In-Reply-To / References value) of the form "Gr.<id>.…@…", or "" if
// none is present. Only the first match is used, per the spec's priority
// rule (explicit header > message-id > in-reply-to > references).
func ExtractGrpIDFromMessageID(value string) string {
	m := grMessageID.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractGrpIDFromList scans a whitespace-separated list of Message-IDs
// (as found in In-Reply-To or References) for the first "Gr.<id>.…@…"
// match.
func ExtractGrpIDFromList(value string) string {
	m := grMessageID.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// Headers holds the group-related fields collected from a message's header
// in a single pass, per spec §4.F step 1. New and legacy header names are
// treated as synonyms; the caller is responsible for resolving
// case-insensitive lookups and RFC 2047 decoding of GrpName before
// constructing this struct.
type Headers struct {
	// GrpID1 comes from Chat-Group-ID / X-MrGrpId (preferred).
	GrpID1 string
	// GrpID2 comes from the message's own Message-ID.
	GrpID2 string
	// GrpID3 comes from the first match inside In-Reply-To.
	GrpID3 string
	// GrpID4 comes from the first match inside References.
	GrpID4 string

	// GrpName is Chat-Group-Name / X-MrGrpName, RFC 2047 decoded.
	GrpName string

	// Removed is the address named by Chat-Group-Member-Removed /
	// X-MrRemoveFromGrp, or "" if absent.
	Removed string
	// Added is the address named by Chat-Group-Member-Added /
	// X-MrAddToGrp, or "" if absent.
	Added string
	// NameChanged reflects presence of Chat-Group-Name-Changed /
	// X-MrGrpNameChanged.
	NameChanged bool
}

// GrpID picks grpid1 ?? grpid2 ?? grpid3 ?? grpid4, per spec step 1.
func (h Headers) GrpID() string {
	switch {
	case h.GrpID1 != "":
		return h.GrpID1
	case h.GrpID2 != "":
		return h.GrpID2
	case h.GrpID3 != "":
		return h.GrpID3
	case h.GrpID4 != "":
		return h.GrpID4
	default:
		return ""
	}
}
