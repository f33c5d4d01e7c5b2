// Package wakelock implements the counted wake-lock flag described in the
// concurrency model: the first lock fires a platform event, the matching
// unlock fires the reverse, guarded by a mutex independent of the database
// lock.
package wakelock

import (
	"sync"

	"github.com/wiremail/wiremail/internal/events"
)

// Lock is a counted flag. Zero value is ready to use (unlocked, count 0).
type Lock struct {
	mu      sync.Mutex
	count   int
	mailbox string
	cb      events.Callback
}

// New builds a wake-lock that reports under mailbox to cb. cb may be nil.
func New(mailbox string, cb events.Callback) *Lock {
	return &Lock{mailbox: mailbox, cb: cb}
}

// Acquire increments the count. On the 0→1 transition it fires
// WAKE_LOCK(1, 0).
func (l *Lock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if l.count == 1 && l.cb != nil {
		l.cb(l.mailbox, events.Event{Code: events.WakeLock, Data1: 1})
	}
}

// Release decrements the count. On the 1→0 transition it fires
// WAKE_LOCK(0, 0). Releasing below zero is a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 && l.cb != nil {
		l.cb(l.mailbox, events.Event{Code: events.WakeLock, Data1: 0})
	}
}

// Held reports whether the lock is currently held by at least one caller.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}
