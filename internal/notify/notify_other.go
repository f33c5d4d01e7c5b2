//go:build !linux

package notify

import "github.com/wiremail/wiremail/internal/logging"

// logNotifier is the non-Linux fallback: wiremaild targets headless Linux
// deployment (see go.mod), so darwin/windows builds just log instead of
// carrying CGo/WinRT notification backends that nothing else in this
// daemon needs.
type logNotifier struct{}

// New returns a Notifier that only logs.
func New() Notifier {
	return logNotifier{}
}

func (logNotifier) Show(title, body string) error {
	logging.WithComponent("notify").Info().Str("title", title).Str("body", body).Msg("notification")
	return nil
}
