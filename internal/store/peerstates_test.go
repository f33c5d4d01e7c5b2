package store

import "testing"

func TestPeerStateTouchThenUpsert(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.PeerState("bob@example.org"); err != nil || ok {
		t.Fatalf("expected no row yet, got ok=%v err=%v", ok, err)
	}

	if err := s.TouchPeerSeen("Bob@Example.ORG", 100); err != nil {
		t.Fatalf("TouchPeerSeen: %v", err)
	}
	st, ok, err := s.PeerState("bob@example.org")
	if err != nil || !ok {
		t.Fatalf("PeerState after touch: ok=%v err=%v", ok, err)
	}
	if st.LastSeen != 100 || st.LastSeenAutocrypt != 0 || st.Fingerprint != "" {
		t.Fatalf("unexpected bare peer state: %+v", st)
	}

	if err := s.UpsertPeerState("bob@example.org", 200, []byte("fake-key-bytes"), "ABCDEF", true); err != nil {
		t.Fatalf("UpsertPeerState: %v", err)
	}
	st, ok, err = s.PeerState("bob@example.org")
	if err != nil || !ok {
		t.Fatalf("PeerState after upsert: ok=%v err=%v", ok, err)
	}
	if st.LastSeen != 200 || st.LastSeenAutocrypt != 200 || st.Fingerprint != "ABCDEF" || !st.PreferEncryptMutual {
		t.Fatalf("unexpected peer state after upsert: %+v", st)
	}

	// A later bare sighting must not clobber the previously learned key.
	if err := s.TouchPeerSeen("bob@example.org", 300); err != nil {
		t.Fatalf("TouchPeerSeen (2nd): %v", err)
	}
	st, _, err = s.PeerState("bob@example.org")
	if err != nil {
		t.Fatalf("PeerState: %v", err)
	}
	if st.LastSeen != 300 || st.LastSeenAutocrypt != 200 || st.Fingerprint != "ABCDEF" {
		t.Fatalf("bare touch should not reset autocrypt fields: %+v", st)
	}
}
