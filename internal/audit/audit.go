// Package audit records service operations to an append-only SQLite log.
// Writes go through an async buffer with batched inserts so the hot path
// never waits on the database; Close flushes whatever is buffered.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pensee/internal/idgen"
	"github.com/hazyhaar/pensee/internal/kit"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one audited operation.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"ts"` // unix ms
	Action     string `json:"action"`
	ProjectID  string `json:"project_id,omitempty"`
	Parameters string `json:"parameters,omitempty"` // JSON
	Status     string `json:"status"`
	Error      string `json:"error_message,omitempty"`
	Transport  string `json:"transport,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	ts            INTEGER NOT NULL,
	action        TEXT NOT NULL,
	project_id    TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	transport     TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_action_ts ON audit_log(action, ts);
CREATE INDEX IF NOT EXISTS idx_audit_project_ts ON audit_log(project_id, ts);
`

const (
	bufferSize    = 256
	batchSize     = 32
	flushInterval = 250 * time.Millisecond
)

// SQLiteLogger persists Entries to an audit_log table.
type SQLiteLogger struct {
	db  *sql.DB
	gen idgen.Generator
	log *slog.Logger

	ch   chan *Entry
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option customises the logger.
type Option func(*SQLiteLogger)

// WithIDGenerator overrides the entry ID strategy (default: "aud_" + UUIDv7).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.gen = gen }
}

// WithLogger sets the slog logger used for flush failures.
func WithLogger(log *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.log = log }
}

// NewSQLiteLogger wraps db. Call Init before logging; call Close to flush.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:   db,
		gen:  idgen.Prefixed("aud_", idgen.UUIDv7()),
		log:  slog.Default(),
		ch:   make(chan *Entry, bufferSize),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l
}

// Init creates the audit_log table and indexes if missing.
func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(schema)
	return err
}

// Log writes one entry synchronously, filling defaults first.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	if e.Transport == "" {
		e.Transport = kit.GetTransport(ctx)
	}
	return l.insert([]*Entry{e})
}

// LogAsync queues one entry for batched insertion. When the buffer is full
// or the logger is closed, the entry is written synchronously instead of
// being dropped.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	if e.Transport == "" {
		e.Transport = "http"
	}

	// The send must happen under mu: Close closes l.ch while holding it,
	// and a send racing the close would panic. The select never blocks, so
	// the critical section stays short.
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if err := l.insert([]*Entry{e}); err != nil {
			l.log.Warn("audit write after close failed", "action", e.Action, "error", err)
		}
		return
	}
	select {
	case l.ch <- e:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		if err := l.insert([]*Entry{e}); err != nil {
			l.log.Warn("audit write failed", "action", e.Action, "error", err)
		}
	}
}

// Close stops the flush loop and drains the buffer.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.gen()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

// run batches queued entries: flush at batchSize, on a timer, and at close.
func (l *SQLiteLogger) run() {
	defer close(l.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []*Entry
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.insert(batch); err != nil {
			l.log.Warn("audit batch flush failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *SQLiteLogger) insert(entries []*Entry) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO audit_log
		(entry_id, ts, action, project_id, parameters, status, error_message, transport, request_id, session_id, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.EntryID, e.Timestamp, e.Action, e.ProjectID, e.Parameters,
			e.Status, e.Error, e.Transport, e.RequestID, e.SessionID, e.DurationMS); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `SELECT entry_id, ts, action, project_id, parameters,
		status, error_message, transport, request_id, session_id, duration_ms
		FROM audit_log ORDER BY ts DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.ProjectID, &e.Parameters,
			&e.Status, &e.Error, &e.Transport, &e.RequestID, &e.SessionID, &e.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Middleware audits every invocation of the wrapped endpoint under the
// given action name. The endpoint's response and error pass through
// untouched; auditing never changes the outcome.
func Middleware(l *SQLiteLogger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Action:     action,
				ProjectID:  kit.GetProjectID(ctx),
				Transport:  kit.GetTransport(ctx),
				RequestID:  kit.GetRequestID(ctx),
				SessionID:  kit.GetSessionID(ctx),
				DurationMS: time.Since(start).Milliseconds(),
			}
			if params, merr := json.Marshal(req); merr == nil {
				e.Parameters = string(params)
			}
			if err != nil {
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}
