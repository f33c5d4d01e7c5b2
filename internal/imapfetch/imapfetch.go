// Package imapfetch is the IMAP collaborator (component I): it owns the
// network connection, watches a folder, and hands every new message to the
// ingestion pipeline's Sink interface. It performs no persistence of its
// own — receive_imf is entirely the sink's business.
package imapfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/logging"
)

// Sink is the pipeline boundary this collaborator drives. The mailbox
// façade passes itself here; its ReceiveIMF adapts the call onto
// ingest.Sink, so imapfetch never imports the ingest package directly
// (breaking the cyclic-ownership the design notes call out).
type Sink interface {
	ReceiveIMF(raw []byte, serverFolder string, serverUID uint32, seen bool) error
}

// Config describes how to reach and authenticate against the IMAP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string // defaults to INBOX
}

// Fetcher owns the IMAP connection and the idle loop.
type Fetcher struct {
	cfg  Config
	sink Sink
	log  zerolog.Logger

	client *imapclient.Client
}

// New builds a Fetcher. It does not connect; call Connect explicitly so
// connect failures can be surfaced to the configuration error path rather
// than a constructor.
func New(cfg Config, sink Sink) *Fetcher {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &Fetcher{cfg: cfg, sink: sink, log: logging.WithComponent("imapfetch")}
}

// Connect dials the server, authenticates, and selects the watched folder.
func (f *Fetcher) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: f.cfg.Host},
	})
	if err != nil {
		return fmt.Errorf("imapfetch: dial: %w", err)
	}

	if err := client.Login(f.cfg.Username, f.cfg.Password).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("imapfetch: login: %w", err)
	}

	if _, err := client.Select(f.cfg.Folder, nil).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("imapfetch: select %s: %w", f.cfg.Folder, err)
	}

	f.client = client
	return nil
}

// Disconnect is a cooperative teardown: it lets an in-flight fetch finish
// before logging out, matching the disconnect contract in the concurrency
// model.
func (f *Fetcher) Disconnect() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Logout().Wait()
	closeErr := f.client.Close()
	f.client = nil
	if err != nil {
		return fmt.Errorf("imapfetch: logout: %w", err)
	}
	return closeErr
}

// FetchNew fetches every message not yet seen by the sink's UID watermark
// and feeds each one through the sink.
func (f *Fetcher) FetchNew(ctx context.Context, sinceUID uint32) error {
	if f.client == nil {
		return fmt.Errorf("imapfetch: fetch_new: not connected")
	}

	uidSet := imap.UIDSet{}
	uidSet.AddRange(imap.UID(sinceUID+1), 0)

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}

	cmd := f.client.Fetch(uidSet, fetchOptions)
	defer cmd.Close()

	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		if err := f.deliverOne(msg); err != nil {
			f.log.Error().Err(err).Msg("fetch_new: delivering message failed")
		}
	}

	return cmd.Close()
}

func (f *Fetcher) deliverOne(msg *imapclient.FetchMessageData) error {
	var raw []byte
	var uid uint32
	var seen bool

	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			uid = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, flag := range data.Flags {
				if flag == imap.FlagSeen {
					seen = true
				}
			}
		case imapclient.FetchItemDataBodySection:
			buf := make([]byte, 0)
			tmp := make([]byte, 32*1024)
			for {
				n, err := data.Literal.Read(tmp)
				if n > 0 {
					buf = append(buf, tmp[:n]...)
				}
				if err != nil {
					break
				}
			}
			raw = buf
		}
	}

	if raw == nil {
		return fmt.Errorf("imapfetch: message %d had no body section", uid)
	}
	return f.sink.ReceiveIMF(raw, f.cfg.Folder, uid, seen)
}

// IdleLoop blocks issuing IMAP IDLE in 29-minute rounds until ctx is
// cancelled, calling onUpdate after each round ends. Server-pushed updates
// do not end a round early; onUpdate runs only when the 29-minute timer
// fires. The caller calls FetchNew from onUpdate.
func (f *Fetcher) IdleLoop(ctx context.Context, onUpdate func()) error {
	if f.client == nil {
		return fmt.Errorf("imapfetch: idle_loop: not connected")
	}

	for {
		idleCmd, err := f.client.Idle()
		if err != nil {
			return fmt.Errorf("imapfetch: idle: %w", err)
		}

		select {
		case <-ctx.Done():
			_ = idleCmd.Close()
			return nil
		case <-time.After(29 * time.Minute):
			// Most servers drop an IDLE after 30 minutes of inactivity;
			// refresh proactively.
		}

		if err := idleCmd.Close(); err != nil {
			return fmt.Errorf("imapfetch: idle close: %w", err)
		}
		onUpdate()
	}
}
