// Package smtpsend is the SMTP collaborator (component J): it owns the
// outgoing network connection and delivers one message per Send call; the
// mailbox façade drains its job queue and calls Send for each send job. No
// pack example ships a third-party SMTP client, so the connection itself
// rides net/smtp (stdlib) while authentication uses go-sasl's PLAIN client
// instead of re-deriving PLAIN by hand.
package smtpsend

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/logging"
)

// Config describes how to reach and authenticate against the SMTP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Sender delivers outgoing mail over SMTP.
type Sender struct {
	cfg Config
	log zerolog.Logger
}

// New builds a Sender.
func New(cfg Config) *Sender {
	return &Sender{cfg: cfg, log: logging.WithComponent("smtpsend")}
}

// Send delivers a single already-composed RFC 5322 message (MIME framing,
// any PGP/MIME wrapping, and From/To headers are all the caller's
// responsibility — this collaborator only moves bytes).
func (s *Sender) Send(from string, to []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtpsend: dial: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtpsend: starttls: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := s.auth()
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtpsend: auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtpsend: mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtpsend: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtpsend: data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtpsend: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtpsend: close body: %w", err)
	}

	return client.Quit()
}

// auth adapts a go-sasl PLAIN client to net/smtp's Auth interface. The IMAP
// side does not use it; imapfetch authenticates with the IMAP LOGIN command.
func (s *Sender) auth() smtp.Auth {
	return &saslAuth{client: sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)}
}

type saslAuth struct {
	client sasl.Client
}

func (a *saslAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	mech, ir, err := a.client.Start()
	if err != nil {
		return "", nil, err
	}
	return mech, ir, nil
}

func (a *saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}
