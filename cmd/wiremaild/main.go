// wiremaild is the headless daemon bootstrap: it opens one mailbox, wires
// the IMAP fetch/idle loop, the SMTP/job drain loop, and a desktop
// notification sink, and blocks until signalled. Account setup is a
// one-shot "configure" subcommand rather than a live control socket — no
// example in the retrieved pack ships an IPC protocol that shape would be
// grounded on, so the daemon's external surface is flags, environment
// variables, and the database it already owns.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wiremail/wiremail/internal/jobs"
	"github.com/wiremail/wiremail/internal/logging"
	"github.com/wiremail/wiremail/internal/mailbox"
	"github.com/wiremail/wiremail/internal/notify"
)

func defaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wiremail", "mailbox.db")
	}
	return "./wiremail.db"
}

func main() {
	if len(os.Args) < 2 {
		runDaemon(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "configure":
		runConfigure(os.Args[2:])
	case "run":
		runDaemon(os.Args[2:])
	default:
		runDaemon(os.Args[1:])
	}
}

// runConfigure is a one-shot subcommand: wiremaild configure -addr ... -imap-host ...
func runConfigure(args []string) {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "path to the mailbox's SQLite database")
	name := fs.String("name", "default", "mailbox instance name")
	addr := fs.String("addr", "", "the mailbox's own email address")
	displayname := fs.String("displayname", "", "display name shown to contacts")
	imapHost := fs.String("imap-host", "", "IMAP server hostname")
	imapPort := fs.Int("imap-port", 993, "IMAP server port")
	imapUser := fs.String("imap-user", "", "IMAP username")
	imapPassword := fs.String("imap-password", "", "IMAP password")
	imapSecurity := fs.String("imap-security", "tls", "IMAP transport security setting, stored in config; the connection always uses implicit TLS")
	smtpHost := fs.String("smtp-host", "", "SMTP server hostname")
	smtpPort := fs.Int("smtp-port", 587, "SMTP server port")
	smtpUser := fs.String("smtp-user", "", "SMTP username")
	smtpPassword := fs.String("smtp-password", "", "SMTP password")
	smtpSecurity := fs.String("smtp-security", "starttls", "SMTP transport security setting, stored in config; the connection always uses STARTTLS when the server offers it")
	fs.Parse(args)

	log := logging.WithComponent("wiremaild")

	if *addr == "" || *imapHost == "" || *smtpHost == "" {
		fmt.Fprintln(os.Stderr, "configure: -addr, -imap-host, and -smtp-host are required")
		os.Exit(2)
	}

	secret := os.Getenv("WIREMAIL_SECRET")
	if secret == "" {
		secret = "wiremail-development-only-secret"
	}

	mb, err := mailbox.Open(*name, *dbPath, secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mailbox")
	}
	defer mb.Close()

	if err := mb.Configure(mailbox.ConfigureParams{
		Addr:         *addr,
		Displayname:  *displayname,
		MailServer:   *imapHost,
		MailPort:     *imapPort,
		MailUser:     *imapUser,
		MailPassword: *imapPassword,
		MailSecurity: *imapSecurity,
		SendServer:   *smtpHost,
		SendPort:     *smtpPort,
		SendUser:     *smtpUser,
		SendPassword: *smtpPassword,
		SendSecurity: *smtpSecurity,
	}); err != nil {
		log.Fatal().Err(err).Msg("configure failed")
	}

	fmt.Println("mailbox configured")
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "path to the mailbox's SQLite database")
	name := fs.String("name", "default", "mailbox instance name, used to tag emitted events")
	fs.Parse(args)

	log := logging.WithComponent("wiremaild")

	secret := os.Getenv("WIREMAIL_SECRET")
	if secret == "" {
		log.Warn().Msg("WIREMAIL_SECRET not set; falling back to a fixed development key for the credentials DB-fallback path")
		secret = "wiremail-development-only-secret"
	}

	mb, err := mailbox.Open(*name, *dbPath, secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mailbox")
	}
	defer mb.Close()

	mb.SetEventCallback(notify.NewSink(notify.New()).Callback)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configured, err := mb.IsConfigured()
	if err != nil {
		log.Fatal().Err(err).Msg("checking configuration state failed")
	}
	if !configured {
		log.Info().Msg("mailbox not configured; run 'wiremaild configure' first — waiting")
	}

	if err := mb.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("initial connect failed, will retry via the job queue")
		if _, err := mb.Jobs().Add(jobs.ActionConfigure, 0, "", time.Now().Unix()); err != nil {
			log.Error().Err(err).Msg("failed to enqueue reconnect job")
		}
	}

	go mb.DrainJobs(ctx)
	go func() {
		if err := mb.RunIMAPLoop(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("imap loop exited")
		}
	}()

	log.Info().Str("db", *dbPath).Str("mailbox", *name).Msg("wiremaild running")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	if err := mb.Disconnect(); err != nil {
		log.Error().Err(err).Msg("disconnect failed")
	}
}
