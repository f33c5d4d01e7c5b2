// Package notify turns the events a mailbox raises (internal/events) into
// desktop notifications. wiremaild is a headless daemon rather than a GUI
// shell, so unlike a chat client's in-window unread badge, a new incoming
// message has nowhere to appear unless something pushes it onto the desktop
// — this package is that push, one freedesktop.org notification per
// IncomingMsg event.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/events"
	"github.com/wiremail/wiremail/internal/logging"
)

// Notifier shows a single desktop notification. Implementations are
// platform-specific (see notify_linux.go); a build lacking one falls back
// to notify_other.go, which only logs.
type Notifier interface {
	Show(title, body string) error
}

// Sink adapts a Notifier to an events.Callback, filtering down to the
// events worth surfacing to a user who isn't staring at a chat window.
type Sink struct {
	notifier Notifier
	log      zerolog.Logger
}

// NewSink wraps the platform notifier returned by New.
func NewSink(n Notifier) *Sink {
	return &Sink{notifier: n, log: logging.WithComponent("notify")}
}

// Callback is the events.Callback this sink exposes, suitable for passing
// straight to Mailbox.SetEventCallback.
func (s *Sink) Callback(mailbox string, evt events.Event) {
	if evt.Code != events.IncomingMsg {
		return
	}
	title := fmt.Sprintf("%s: new message", mailbox)
	body := fmt.Sprintf("chat %d, message %d", evt.Data1, evt.Data2)
	if err := s.notifier.Show(title, body); err != nil {
		s.log.Debug().Err(err).Msg("show notification failed")
	}
}
