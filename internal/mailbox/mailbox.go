// Package mailbox is the top-level façade: the object the UI/CLI, the IMAP
// thread, the SMTP thread, and the job worker all share. It owns the
// database, the ingestion pipeline, the wake-lock, and the event callback,
// and is the only thing other packages need a reference to.
package mailbox

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/credentials"
	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/events"
	"github.com/wiremail/wiremail/internal/imapfetch"
	"github.com/wiremail/wiremail/internal/ingest"
	"github.com/wiremail/wiremail/internal/jobs"
	"github.com/wiremail/wiremail/internal/logging"
	"github.com/wiremail/wiremail/internal/pgp"
	"github.com/wiremail/wiremail/internal/smtpsend"
	"github.com/wiremail/wiremail/internal/store"
	"github.com/wiremail/wiremail/internal/wakelock"
)

// Credential store key names (kept distinct from config keys: these sit in
// the OS keyring or the encrypted fallback table, never the plaintext
// config table).
const (
	credentialKeyIMAPPassword  = "imap_password"
	credentialKeySMTPPassword  = "smtp_password"
	credentialKeyASMPassphrase = "asm_passphrase"
)

// Mailbox is the shared façade. All exported methods are safe to call
// concurrently; persistence access is further serialized by Store's own
// lock.
type Mailbox struct {
	name string

	db     *database.DB
	store  *store.Store
	sink   *ingest.Sink
	jobs   *jobs.Queue
	creds  *credentials.Store
	engine *pgp.Engine
	wake   *wakelock.Lock
	sender *smtpsend.Sender

	log zerolog.Logger

	mu      sync.RWMutex
	cb      events.Callback
	fetcher *imapfetch.Fetcher
	lastUID uint32
}

// Open allocates a mailbox backed by the database at dbPath. A failure here
// is the "fatal startup" error kind — the caller should terminate the
// process rather than attempt to continue with a partially built mailbox.
func Open(name, dbPath, fallbackSecretKey string) (*Mailbox, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mailbox: migrate: %w", err)
	}

	m := &Mailbox{
		name:   name,
		db:     db,
		store:  store.New(db),
		jobs:   jobs.New(db),
		creds:  credentials.New(db, fallbackSecretKey),
		engine: pgp.NewEngine(),
		log:    logging.WithComponent("mailbox"),
	}
	m.wake = wakelock.New(name, m.dispatch)
	m.sink = ingest.NewSink(m.store, m.ConfiguredAddr)

	pgp.SeedRNG(entropySeed())

	return m, nil
}

// Close releases the database connection. The caller is responsible for
// having already disconnected any network collaborators.
func (m *Mailbox) Close() error {
	return m.db.Close()
}

// SetEventCallback registers cb as the sink for every event this mailbox
// raises from here on, including wake-lock transitions.
func (m *Mailbox) SetEventCallback(cb events.Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

func (m *Mailbox) dispatch(mailbox string, evt events.Event) {
	m.mu.RLock()
	cb := m.cb
	m.mu.RUnlock()
	if cb != nil {
		cb(mailbox, evt)
	}
}

// ReceiveIMF is the façade's adapter onto the ingestion pipeline's Sink,
// satisfying the narrow interface the IMAP collaborator expects (the
// "explicit interface instead of a raw back-pointer" design note) and
// flushing queued events only after the underlying transaction commits.
func (m *Mailbox) ReceiveIMF(raw []byte, serverFolder string, serverUID uint32, seen bool) error {
	m.wake.Acquire()
	defer m.wake.Release()

	evts, err := m.sink.ReceiveIMF(raw, serverFolder, serverUID, ingest.Flags{Seen: seen})
	if err != nil {
		return err
	}

	m.mu.Lock()
	if serverUID > m.lastUID {
		m.lastUID = serverUID
	}
	m.mu.Unlock()

	for _, evt := range evts {
		m.dispatch(m.name, evt)
	}
	return nil
}

// RunIMAPLoop fetches everything new, then blocks issuing IMAP IDLE and
// re-fetching after each 29-minute IDLE round, until ctx is cancelled.
// Server pushes do not trigger an earlier fetch. Intended to run in its own
// goroutine after Connect.
func (m *Mailbox) RunIMAPLoop(ctx context.Context) error {
	m.mu.RLock()
	fetcher := m.fetcher
	m.mu.RUnlock()
	if fetcher == nil {
		return fmt.Errorf("mailbox: run_imap_loop: not connected")
	}

	fetchOnce := func() {
		m.mu.RLock()
		since := m.lastUID
		m.mu.RUnlock()
		if err := fetcher.FetchNew(ctx, since); err != nil {
			m.log.Error().Err(err).Msg("imap fetch failed")
		}
	}

	fetchOnce()
	return fetcher.IdleLoop(ctx, fetchOnce)
}

// jobPollInterval is how often DrainJobs checks the jobs table for due work.
// Shorter than jobs.StandardDelay (the backoff applied to a single retried
// job) so a freshly enqueued job is picked up promptly.
const jobPollInterval = 10 * time.Second

// DrainJobs polls the persisted job queue and executes due jobs until ctx is
// cancelled. Intended to run in its own goroutine.
func (m *Mailbox) DrainJobs(ctx context.Context) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.processDueJobs(ctx)
		}
	}
}

func (m *Mailbox) processDueJobs(ctx context.Context) {
	due, err := m.jobs.Due(time.Now().Unix())
	if err != nil {
		m.log.Error().Err(err).Msg("drain_jobs: listing due jobs failed")
		return
	}

	for _, j := range due {
		var err error
		switch j.Action {
		case jobs.ActionSendMsg:
			err = m.sendQueuedMessage(j.ForeignID)
		case jobs.ActionConfigure:
			err = m.Connect(ctx)
		case jobs.ActionSendMDN, jobs.ActionDeleteMsg:
			// TODO: wire MDN composition and IMAP-side deletion (STORE
			// \Deleted + EXPUNGE) through imapfetch; until then these
			// retry indefinitely rather than silently dropping the job.
			err = fmt.Errorf("mailbox: drain_jobs: %s not yet implemented", j.Action)
		default:
			err = fmt.Errorf("mailbox: drain_jobs: unknown action %q", j.Action)
		}

		if err != nil {
			m.log.Debug().Err(err).Int64("job_id", j.ID).Str("action", j.Action).Msg("job failed, rescheduling")
			if rerr := m.jobs.TryAgainLater(j.ID, time.Now().Unix(), jobs.StandardDelay); rerr != nil {
				m.log.Error().Err(rerr).Int64("job_id", j.ID).Msg("reschedule failed")
			}
			continue
		}

		if err := m.jobs.Done(j.ID); err != nil {
			m.log.Error().Err(err).Int64("job_id", j.ID).Msg("marking job done failed")
		}
	}
}

// sendQueuedMessage recomposes a previously inserted msgs row into wire
// bytes and hands it to the SMTP collaborator. The row's txt is sent as a
// plaintext body; no PGP signing or encryption is applied to outgoing mail,
// neither here nor when the row is inserted.
func (m *Mailbox) sendQueuedMessage(msgID int64) error {
	msg, err := m.store.GetMessage(msgID)
	if err != nil {
		return fmt.Errorf("mailbox: send_queued_message: %w", err)
	}

	toAddr, err := m.store.ContactAddr(msg.ToID)
	if err != nil {
		return fmt.Errorf("mailbox: send_queued_message: %w", err)
	}
	fromAddr := m.ConfiguredAddr()

	raw, err := composeMessage(fromAddr, toAddr, msg)
	if err != nil {
		return fmt.Errorf("mailbox: send_queued_message: %w", err)
	}

	if err := m.Send(fromAddr, []string{toAddr}, raw); err != nil {
		return fmt.Errorf("mailbox: send_queued_message: %w", err)
	}

	return m.store.SetMessageState(msgID, store.StateOutDelivered)
}

// ConfigureParams is the input to Configure.
type ConfigureParams struct {
	Addr        string
	Displayname string

	MailServer   string
	MailPort     int
	MailUser     string
	MailPassword string
	MailSecurity string

	SendServer   string
	SendPort     int
	SendUser     string
	SendPassword string
	SendSecurity string
}

// Configure persists account settings and credentials. It does not connect;
// call Connect afterwards.
func (m *Mailbox) Configure(p ConfigureParams) error {
	if err := m.creds.Set(credentialKeyIMAPPassword, p.MailPassword); err != nil {
		return fmt.Errorf("mailbox: configure: store imap password: %w", err)
	}
	if err := m.creds.Set(credentialKeySMTPPassword, p.SendPassword); err != nil {
		return fmt.Errorf("mailbox: configure: store smtp password: %w", err)
	}

	m.store.Lock()
	defer m.store.Unlock()

	for key, value := range map[string]string{
		store.ConfigConfiguredAddr: p.Addr,
		store.ConfigDisplayname:    p.Displayname,
		store.ConfigMailServer:     p.MailServer,
		store.ConfigMailUser:       p.MailUser,
		store.ConfigMailSecurity:   p.MailSecurity,
		store.ConfigSendServer:     p.SendServer,
		store.ConfigSendUser:       p.SendUser,
		store.ConfigSendSecurity:   p.SendSecurity,
	} {
		if err := m.store.SetConfig(key, value); err != nil {
			return fmt.Errorf("mailbox: configure: %w", err)
		}
	}
	if err := m.store.SetConfigInt(store.ConfigMailPort, p.MailPort); err != nil {
		return err
	}
	if err := m.store.SetConfigInt(store.ConfigSendPort, p.SendPort); err != nil {
		return err
	}
	if err := m.store.SetConfig(store.ConfigConfigured, "1"); err != nil {
		return err
	}

	if err := m.store.SetSelfAddr(p.Addr); err != nil {
		return err
	}

	return nil
}

// Connect dials IMAP and sets up the SMTP sender, using the persisted
// configured_mail_*/configured_send_* keys. Per the configuration error
// kind, calling Connect while not configured is a logged no-op, not an
// error — callers are not expected to gate on IsConfigured themselves.
func (m *Mailbox) Connect(ctx context.Context) error {
	configured, err := m.IsConfigured()
	if err != nil {
		return err
	}
	if !configured {
		m.log.Info().Msg("connect: mailbox not configured, ignoring")
		return nil
	}

	host, _, err := m.GetConfig(store.ConfigMailServer)
	if err != nil {
		return err
	}
	port, err := m.GetConfigInt(store.ConfigMailPort, 993)
	if err != nil {
		return err
	}
	user, _, err := m.GetConfig(store.ConfigMailUser)
	if err != nil {
		return err
	}
	password, err := m.creds.Get(credentialKeyIMAPPassword)
	if err != nil {
		return fmt.Errorf("mailbox: connect: read imap password: %w", err)
	}

	fetcher := imapfetch.New(imapfetch.Config{
		Host:     host,
		Port:     port,
		Username: user,
		Password: password,
	}, m)
	if err := fetcher.Connect(ctx); err != nil {
		return fmt.Errorf("mailbox: connect: %w", err)
	}

	sendHost, _, err := m.GetConfig(store.ConfigSendServer)
	if err != nil {
		return err
	}
	sendPort, err := m.GetConfigInt(store.ConfigSendPort, 587)
	if err != nil {
		return err
	}
	sendUser, _, err := m.GetConfig(store.ConfigSendUser)
	if err != nil {
		return err
	}
	sendPassword, err := m.creds.Get(credentialKeySMTPPassword)
	if err != nil {
		return fmt.Errorf("mailbox: connect: read smtp password: %w", err)
	}

	m.mu.Lock()
	m.fetcher = fetcher
	m.sender = smtpsend.New(smtpsend.Config{
		Host: sendHost, Port: sendPort, Username: sendUser, Password: sendPassword,
	})
	m.mu.Unlock()

	return nil
}

// Disconnect is a cooperative teardown: in-flight operations are allowed to
// finish before the IMAP connection is torn down.
func (m *Mailbox) Disconnect() error {
	m.mu.Lock()
	fetcher := m.fetcher
	m.fetcher = nil
	m.sender = nil
	m.mu.Unlock()

	if fetcher == nil {
		return nil
	}
	return fetcher.Disconnect()
}

// Send hands a fully composed message to the SMTP collaborator.
func (m *Mailbox) Send(from string, to []string, raw []byte) error {
	m.mu.RLock()
	sender := m.sender
	m.mu.RUnlock()
	if sender == nil {
		return fmt.Errorf("mailbox: send: not connected")
	}
	return sender.Send(from, to, raw)
}

// GetConfig reads a persisted string config value.
func (m *Mailbox) GetConfig(key string) (string, bool, error) {
	m.store.Lock()
	defer m.store.Unlock()
	return m.store.GetConfig(key)
}

// SetConfig stores a string config value.
func (m *Mailbox) SetConfig(key, value string) error {
	m.store.Lock()
	defer m.store.Unlock()
	return m.store.SetConfig(key, value)
}

// GetConfigInt reads a persisted integer config value.
func (m *Mailbox) GetConfigInt(key string, def int) (int, error) {
	m.store.Lock()
	defer m.store.Unlock()
	return m.store.GetConfigInt(key, def)
}

// ConfiguredAddr returns the mailbox's own configured address, or "" if not
// yet configured. Suitable for passing as ingest.NewSink's selfAddr hook.
func (m *Mailbox) ConfiguredAddr() string {
	addr, _, err := m.GetConfig(store.ConfigConfiguredAddr)
	if err != nil {
		return ""
	}
	return addr
}

// IsConfigured reports whether Configure has completed successfully.
func (m *Mailbox) IsConfigured() (bool, error) {
	v, ok, err := m.GetConfig(store.ConfigConfigured)
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

// Info is the snapshot returned by GetInfo.
type Info struct {
	Configured     bool
	ConfiguredAddr string
	Displayname    string
	E2EEEnabled    bool
	HasKeypair     bool
}

// GetInfo returns a snapshot of the mailbox's current configuration state.
// It reports no row counts (of chats, messages, contacts or peerstates);
// keypair presence is the only key-related field.
func (m *Mailbox) GetInfo() (Info, error) {
	configured, err := m.IsConfigured()
	if err != nil {
		return Info{}, err
	}
	addr := m.ConfiguredAddr()
	displayname, _, err := m.GetConfig(store.ConfigDisplayname)
	if err != nil {
		return Info{}, err
	}
	e2ee, err := m.GetConfigInt(store.ConfigE2EEEnabled, store.GetConfigIntDefault(store.ConfigE2EEEnabled))
	if err != nil {
		return Info{}, err
	}

	var keypairCount int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM keypairs`).Scan(&keypairCount); err != nil {
		return Info{}, fmt.Errorf("mailbox: get_info: %w", err)
	}

	return Info{
		Configured:     configured,
		ConfiguredAddr: addr,
		Displayname:    displayname,
		E2EEEnabled:    e2ee != 0,
		HasKeypair:     keypairCount > 0,
	}, nil
}

// Engine exposes the PGP engine for callers that need to encrypt/decrypt
// outside the ingestion pipeline (e.g. the SMTP send path).
func (m *Mailbox) Engine() *pgp.Engine { return m.engine }

// Store exposes the persistence façade for callers building on top of the
// mailbox (e.g. a UI layer listing chats).
func (m *Mailbox) Store() *store.Store { return m.store }

// Jobs exposes the retry queue for the network collaborators to enqueue
// and drain work against.
func (m *Mailbox) Jobs() *jobs.Queue { return m.jobs }

// Credentials exposes the secret store.
func (m *Mailbox) Credentials() *credentials.Store { return m.creds }

// entropySeed gathers the same entropy sources the spec's rand_seed hook
// names: wall time, a stack address, a heap address, and the process id (a
// thread id isn't meaningfully available from pure Go, so the goroutine's
// stack address stands in for it).
func entropySeed() []byte {
	var stackVar byte
	heapVar := new(byte)

	buf := make([]byte, 0, 32)
	var tsBuf [8]byte
	now := uint64(time.Now().UnixNano())
	for i := 0; i < 8; i++ {
		tsBuf[i] = byte(now >> (8 * i))
	}
	buf = append(buf, tsBuf[:]...)

	stackAddr := uint64(uintptr(unsafe.Pointer(&stackVar)))
	heapAddr := uint64(uintptr(unsafe.Pointer(heapVar)))
	pid := uint64(os.Getpid())
	for _, v := range []uint64{stackAddr, heapAddr, pid} {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		buf = append(buf, b[:]...)
	}

	return buf
}
