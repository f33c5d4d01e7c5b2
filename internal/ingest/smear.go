package ingest

import (
	"sync"
	"time"
)

// smearWindow bounds how far create_smeared_timestamp will run ahead of
// wall-clock time under a burst of same-second deliveries.
const smearWindow = 5

// Smearer hands out monotonically increasing per-mailbox timestamps at
// second resolution, guaranteeing total (ts, id) ordering even when many
// messages arrive within the same wall-clock second.
type Smearer struct {
	mu   sync.Mutex
	last int64
}

// NewSmearer returns a ready-to-use smearer.
func NewSmearer() *Smearer {
	return &Smearer{}
}

// Now returns the current wall-clock time, the ceiling below which an
// incoming message's own Date: timestamp is accepted as-is.
func (s *Smearer) Now() int64 {
	return time.Now().Unix()
}

// CreateSmearedTimestamp returns the next timestamp in the monotonically
// increasing sequence: if wall-clock time has caught up, it resets to now;
// otherwise it advances by one second, up to smearWindow seconds ahead of
// wall-clock time.
func (s *Smearer) CreateSmearedTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	switch {
	case s.last < now:
		s.last = now
	case s.last < now+smearWindow:
		s.last++
	}
	return s.last
}
