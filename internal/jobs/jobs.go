// Package jobs implements a small persisted retry queue backing the
// "try again later" primitive described in the concurrency model: connect
// retries, outgoing send retries, and MDN dispatch all go through here so a
// process restart doesn't lose pending work.
package jobs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/logging"
)

// StandardDelay is the default backoff applied by TryAgainLater when the
// caller doesn't have a better estimate.
const StandardDelay = 90 * time.Second

// Well-known job actions.
const (
	ActionSendMsg   = "send_msg"
	ActionSendMDN   = "send_mdn"
	ActionConfigure = "configure"
	ActionDeleteMsg = "delete_msg_on_server"
)

// Job is a single queued unit of retryable work.
type Job struct {
	ID               int64
	Action           string
	ForeignID        int64
	Param            string
	AddedTimestamp   int64
	DesiredTimestamp int64
	Tries            int
}

// Queue is the persisted job queue, driven by a worker goroutine elsewhere
// (e.g. the mailbox façade's background loop).
type Queue struct {
	db  *database.DB
	log zerolog.Logger
}

// New wraps db as a job queue.
func New(db *database.DB) *Queue {
	return &Queue{db: db, log: logging.WithComponent("jobs")}
}

// Add enqueues a new job, due immediately.
func (q *Queue) Add(action string, foreignID int64, param string, now int64) (int64, error) {
	res, err := q.db.Exec(`
		INSERT INTO jobs (action, foreign_id, param, added_timestamp, desired_timestamp, tries)
		VALUES (?, ?, ?, ?, ?, 0)
	`, action, foreignID, param, now, now)
	if err != nil {
		return 0, fmt.Errorf("jobs: add: %w", err)
	}
	return res.LastInsertId()
}

// Due returns every job whose desired_timestamp has passed, oldest first.
func (q *Queue) Due(now int64) ([]Job, error) {
	rows, err := q.db.Query(`
		SELECT id, action, foreign_id, param, added_timestamp, desired_timestamp, tries
		FROM jobs WHERE desired_timestamp <= ? ORDER BY id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("jobs: due: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Action, &j.ForeignID, &j.Param, &j.AddedTimestamp, &j.DesiredTimestamp, &j.Tries); err != nil {
			return nil, fmt.Errorf("jobs: due: scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Done removes a job that finished successfully.
func (q *Queue) Done(id int64) error {
	if _, err := q.db.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("jobs: done: %w", err)
	}
	return nil
}

// TryAgainLater reschedules a job after delay (from now) and increments its
// try count, per the concurrency model's "try again later" primitive.
// Transient network errors are the typical caller.
func (q *Queue) TryAgainLater(id int64, now int64, delay time.Duration) error {
	desired := now + int64(delay.Seconds())
	if _, err := q.db.Exec(`
		UPDATE jobs SET desired_timestamp = ?, tries = tries + 1 WHERE id = ?
	`, desired, id); err != nil {
		return fmt.Errorf("jobs: try_again_later: %w", err)
	}
	return nil
}

// Tries returns a job's current retry count, or sql.ErrNoRows if it no
// longer exists.
func (q *Queue) Tries(id int64) (int, error) {
	var tries int
	err := q.db.QueryRow(`SELECT tries FROM jobs WHERE id = ?`, id).Scan(&tries)
	if err == sql.ErrNoRows {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("jobs: tries: %w", err)
	}
	return tries, nil
}
