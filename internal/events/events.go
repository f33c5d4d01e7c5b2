// Package events defines the event codes delivered to the host callback and
// a small in-process funnel used to queue them until a transaction commits.
package events

// Code identifies an event kind, mirroring the external event callback
// contract.
type Code int

const (
	MsgsChanged Code = iota + 1
	IncomingMsg
	MsgRead
	ChatModified
	WakeLock
)

func (c Code) String() string {
	switch c {
	case MsgsChanged:
		return "MSGS_CHANGED"
	case IncomingMsg:
		return "INCOMING_MSG"
	case MsgRead:
		return "MSG_READ"
	case ChatModified:
		return "CHAT_MODIFIED"
	case WakeLock:
		return "WAKE_LOCK"
	default:
		return "UNKNOWN"
	}
}

// Event is a single notification, queued during a transaction and emitted
// only after it commits.
type Event struct {
	Code  Code
	Data1 int64
	Data2 int64
}

// Callback is the host sink. mailbox identifies the calling mailbox instance
// for hosts that juggle more than one.
type Callback func(mailbox string, evt Event)

// Queue accumulates events raised while a lock is held so they can be
// flushed only once the transaction backing them has committed, per the
// "emit events outside the lock" ordering guarantee.
type Queue struct {
	pending []Event
}

// Push appends evt to the queue.
func (q *Queue) Push(evt Event) {
	q.pending = append(q.pending, evt)
}

// Flush calls cb for every queued event, in commit order, then empties the
// queue. Safe to call with a nil cb (events are simply dropped).
func (q *Queue) Flush(mailbox string, cb Callback) {
	if cb != nil {
		for _, evt := range q.pending {
			cb(mailbox, evt)
		}
	}
	q.pending = nil
}
