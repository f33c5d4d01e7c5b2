package groupid

import (
	"github.com/wiremail/wiremail/internal/store"
)

// Input carries everything the resolver needs out of a parsed message and
// the pipeline's own classification, per spec §4.F.
type Input struct {
	Headers        Headers
	CreateAsNeeded bool
	FromID         int64
	ToList         []int64
	// IsSendByMessenger reflects whether the message itself was sent by a
	// cooperating chat client (used by the "reply accidentally hit one
	// recipient" guard, step 8).
	IsSendByMessenger bool
}

// Result reports what the resolver did, beyond the returned chat id, so the
// ingestion pipeline can emit the right events.
type Result struct {
	// ChatID is the resolved chat, or 0 if this message is not a group
	// match at all (route through the normal 1:1/deaddrop fallback).
	ChatID int64
	// Created is true if a new chat row was inserted.
	Created bool
	// Renamed is true if the chat's name was changed in place (no
	// membership change).
	Renamed bool
}

const maxGroupNameLen = 200

// Resolve implements the group-ID resolution algorithm of spec §4.F.
func Resolve(s *store.Store, in Input) (Result, error) {
	grpid := in.Headers.GrpID()
	if grpid == "" {
		return Result{}, nil
	}

	chatID, found, err := s.LookupChatByGrpID(grpid)
	if err != nil {
		return Result{}, err
	}

	if found {
		member, err := s.IsContactInChat(chatID, in.FromID)
		if err != nil {
			return Result{}, err
		}
		if !member {
			return Result{}, nil
		}
	}

	result := Result{ChatID: chatID}

	if !found {
		if !in.CreateAsNeeded {
			return checkLeftGroupTrash(s, grpid)
		}

		if in.Headers.GrpName == "" || in.Headers.Removed != "" {
			return checkLeftGroupTrash(s, grpid)
		}

		left, err := s.GroupIsExplicitlyLeft(grpid)
		if err != nil {
			return Result{}, err
		}
		if left {
			addedIsSelf, err := s.ContactAddrEquals(store.ContactSelf, in.Headers.Added)
			if err != nil {
				return Result{}, err
			}
			if !addedIsSelf {
				return checkLeftGroupTrash(s, grpid)
			}
			if err := s.UnmarkGroupLeft(grpid); err != nil {
				return Result{}, err
			}
		}

		chatID, err = s.InsertChat("group", in.Headers.GrpName, grpid)
		if err != nil {
			return Result{}, err
		}
		result.ChatID = chatID
		result.Created = true
		found = true
	}

	recreateMemberList := result.Created
	if in.Headers.Added != "" || in.Headers.Removed != "" {
		recreateMemberList = true
	} else if in.Headers.NameChanged && len(in.Headers.GrpName) <= maxGroupNameLen && in.Headers.GrpName != "" {
		if err := s.RenameChat(chatID, in.Headers.GrpName); err != nil {
			return Result{}, err
		}
		result.Renamed = true
	}

	if recreateMemberList {
		if err := recreateMembers(s, chatID, in); err != nil {
			return Result{}, err
		}
	}

	// "Reply accidentally hit one recipient" guard (step 8): demote to 1:1
	// if this looks like an accidental reply-all-minus-everyone.
	if len(in.ToList) == 1 && !in.IsSendByMessenger {
		count, err := s.ChatContactCount(chatID)
		if err != nil {
			return Result{}, err
		}
		if count > 3 {
			return Result{}, nil
		}
	}

	return result, nil
}

func checkLeftGroupTrash(s *store.Store, grpid string) (Result, error) {
	left, err := s.GroupIsExplicitlyLeft(grpid)
	if err != nil {
		return Result{}, err
	}
	if left {
		return Result{ChatID: store.ChatTrash}, nil
	}
	return Result{}, nil
}

// recreateMembers clears and rebuilds chatID's membership per step 7: SELF
// is always added unless SELF is the removal target, from_id is added
// unless special/self/removed, and likewise for every to_id.
func recreateMembers(s *store.Store, chatID int64, in Input) error {
	if err := s.ClearChatMembers(chatID); err != nil {
		return err
	}

	selfIsRemoved, err := s.ContactAddrEquals(store.ContactSelf, in.Headers.Removed)
	if err != nil {
		return err
	}
	if !selfIsRemoved {
		if err := s.AddContactToChat(chatID, store.ContactSelf); err != nil {
			return err
		}
	}

	if err := maybeAddMember(s, chatID, in.FromID, in.Headers.Removed); err != nil {
		return err
	}
	for _, to := range in.ToList {
		if err := maybeAddMember(s, chatID, to, in.Headers.Removed); err != nil {
			return err
		}
	}

	return nil
}

func maybeAddMember(s *store.Store, chatID, contactID int64, removedAddr string) error {
	if contactID <= store.ContactLastSpecial || contactID == store.ContactSelf {
		return nil
	}
	if removedAddr != "" {
		removed, err := s.ContactAddrEquals(contactID, removedAddr)
		if err != nil {
			return err
		}
		if removed {
			return nil
		}
	}
	return s.AddContactToChat(chatID, contactID)
}
