// Package store is the file-backed persistence layer for thinking sessions.
//
// Each project owns one session file under the storage root. Every mutation
// takes an exclusive advisory lock on the project's lock file, rewrites the
// full history to a temp file, snapshots the previous file to a timestamped
// backup, and renames the temp file over the original. Readers take a shared
// lock, so no caller ever observes a half-written file, whether in-process
// or in another process.
//
// A corrupted session file is recoverable data loss, not a fatal error:
// Load degrades to an empty history and logs, and the next Append snapshots
// the corrupt bytes to a backup before overwriting them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/hazyhaar/pensee/internal/thought"
)

// schemaVersion is the session file format version.
const schemaVersion = 1

// ErrUnavailable is returned when the advisory lock cannot be acquired
// within the configured timeout. The caller should retry later.
var ErrUnavailable = errors.New("pensee: storage unavailable")

// ErrWriteFailed is returned when a durable write did not complete.
// The previous session file is left untouched.
var ErrWriteFailed = errors.New("pensee: storage write failed")

// Config controls lock waits and backup retention for all engines.
type Config struct {
	// LockTimeout bounds the wait for the per-project advisory lock.
	LockTimeout time.Duration
	// LockPoll is the retry interval while waiting for the lock.
	LockPoll time.Duration
	// Backups is the number of timestamped backup files retained per
	// project. Older backups are pruned after each successful write.
	Backups int
}

func (c *Config) defaults() {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.LockPoll <= 0 {
		c.LockPoll = 50 * time.Millisecond
	}
	if c.Backups <= 0 {
		c.Backups = 5
	}
}

// sessionFile is the self-describing on-disk envelope. The same schema is
// used for the primary session file and for export/import payloads.
type sessionFile struct {
	SchemaVersion int                `json:"schema_version"`
	ProjectID     string             `json:"project_id"`
	SavedAt       int64              `json:"saved_at"` // unix ms
	ExportedAt    int64              `json:"exported_at,omitempty"`
	Stages        map[string]int     `json:"stages,omitempty"`
	Thoughts      []*thought.Thought `json:"thoughts"`
}

// Engine persists one project's thought history.
type Engine struct {
	projectID string
	path      string // <root>/<project>_session.json
	flk       *flock.Flock
	mu        sync.Mutex // serializes in-process callers on this project
	cfg       Config
	logger    *slog.Logger
}

// NewEngine creates an engine for one project. The session file is created
// lazily on first write; construction does no I/O.
func NewEngine(dir, projectID string, cfg Config, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	base := filepath.Join(dir, projectID+"_session")
	return &Engine{
		projectID: projectID,
		path:      base + ".json",
		flk:       flock.New(base + ".lock"),
		cfg:       cfg,
		logger:    logger,
	}
}

// ProjectID returns the sanitized project identifier this engine owns.
func (e *Engine) ProjectID() string { return e.projectID }

// Path returns the session file path (exposed for tests and diagnostics).
func (e *Engine) Path() string { return e.path }

// Append adds one thought to the end of the history and persists the full
// updated history durably before returning.
func (e *Engine) Append(ctx context.Context, th *thought.Thought) error {
	return e.mutate(ctx, func(hist []*thought.Thought) []*thought.Thought {
		return append(hist, th)
	})
}

// Clear atomically replaces the persisted history with an empty one.
// Clearing an already-empty history succeeds.
func (e *Engine) Clear(ctx context.Context) error {
	return e.mutate(ctx, func([]*thought.Thought) []*thought.Thought {
		return []*thought.Thought{}
	})
}

// Load returns the persisted history in insertion order. A missing, empty
// or corrupted session file yields an empty history, never an error.
func (e *Engine) Load(ctx context.Context) ([]*thought.Thought, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.lock(ctx, false); err != nil {
		return nil, err
	}
	defer e.flk.Unlock()

	return e.readLocked(), nil
}

// Export serializes the full history to target atomically. The payload uses
// the session file schema plus export metadata (timestamp, stage counts).
func (e *Engine) Export(ctx context.Context, target string) error {
	hist, err := e.Load(ctx)
	if err != nil {
		return err
	}

	stages := make(map[string]int, 5)
	for _, stage := range thought.Stages() {
		stages[string(stage)] = 0
	}
	for _, th := range hist {
		stages[string(th.Stage)]++
	}

	now := time.Now().UnixMilli()
	env := &sessionFile{
		SchemaVersion: schemaVersion,
		ProjectID:     e.projectID,
		SavedAt:       now,
		ExportedAt:    now,
		Stages:        stages,
		Thoughts:      hist,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal export: %v", ErrWriteFailed, err)
	}
	if err := atomicWrite(target, data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Import replaces the project history with the contents of source.
// Unlike Load, a malformed import file is surfaced as an error: the caller
// named a specific file and should know it was unusable.
func (e *Engine) Import(ctx context.Context, source string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("%w: read import file: %v", thought.ErrInvalidInput, err)
	}
	var env sessionFile
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: parse import file %s: %v", thought.ErrInvalidInput, source, err)
	}
	if env.SchemaVersion != schemaVersion {
		return fmt.Errorf("%w: unsupported schema_version %d in %s", thought.ErrInvalidInput, env.SchemaVersion, source)
	}

	imported := env.Thoughts
	if imported == nil {
		imported = []*thought.Thought{}
	}
	return e.mutate(ctx, func([]*thought.Thought) []*thought.Thought {
		return imported
	})
}

// mutate runs the locked read-modify-write cycle: exclusive lock, load
// current state (degrading on corruption), apply fn, persist atomically.
func (e *Engine) mutate(ctx context.Context, fn func([]*thought.Thought) []*thought.Thought) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.lock(ctx, true); err != nil {
		return err
	}
	defer e.flk.Unlock()

	hist := e.readLocked()
	hist = fn(hist)
	return e.writeLocked(hist)
}

// lock acquires the advisory file lock with a bounded wait. exclusive
// selects write vs read mode. The caller must hold e.mu and must release
// via e.flk.Unlock on every path.
func (e *Engine) lock(ctx context.Context, exclusive bool) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = e.flk.TryLockContext(lockCtx, e.cfg.LockPoll)
	} else {
		locked, err = e.flk.TryRLockContext(lockCtx, e.cfg.LockPoll)
	}
	if err != nil || !locked {
		return fmt.Errorf("%w: lock %s not acquired within %s", ErrUnavailable, e.flk.Path(), e.cfg.LockTimeout)
	}
	return nil
}

// readLocked loads the current history from disk. Missing, empty or
// malformed content degrades to an empty history with a warning;
// continuity of the session matters more than strict durability here.
func (e *Engine) readLocked() []*thought.Thought {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("session file unreadable, starting empty",
				"project_id", e.projectID, "path", e.path, "error", err)
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var env sessionFile
	if err := json.Unmarshal(data, &env); err != nil {
		e.logger.Warn("session file corrupted, starting empty",
			"project_id", e.projectID, "path", e.path, "error", err)
		return nil
	}
	if env.SchemaVersion != schemaVersion {
		e.logger.Warn("session file has unsupported schema, starting empty",
			"project_id", e.projectID, "schema_version", env.SchemaVersion)
		return nil
	}
	return env.Thoughts
}

// writeLocked persists hist durably: temp file in the same directory,
// timestamped backup of the previous file, atomic rename. A failure before
// the rename leaves the previous file untouched.
func (e *Engine) writeLocked(hist []*thought.Thought) error {
	if hist == nil {
		hist = []*thought.Thought{}
	}
	env := &sessionFile{
		SchemaVersion: schemaVersion,
		ProjectID:     e.projectID,
		SavedAt:       time.Now().UnixMilli(),
		Thoughts:      hist,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal session: %v", ErrWriteFailed, err)
	}

	e.backupCurrent()

	if err := atomicWrite(e.path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// backupCurrent snapshots the existing session file, corrupt bytes
// included, to a timestamped .bak sibling and prunes old backups. Backup
// failure is logged, never fatal: the new write is about to supersede the
// old state anyway.
func (e *Engine) backupCurrent() {
	if _, err := os.Stat(e.path); err != nil {
		return // nothing to back up
	}
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	bak := fmt.Sprintf("%s.%s.bak", e.path, stamp)
	if err := copyFile(e.path, bak); err != nil {
		e.logger.Warn("session backup failed", "project_id", e.projectID, "error", err)
		return
	}
	e.pruneBackups()
}

// pruneBackups keeps the newest cfg.Backups backup files for this project.
func (e *Engine) pruneBackups() {
	matches, err := filepath.Glob(e.path + ".*.bak")
	if err != nil || len(matches) <= e.cfg.Backups {
		return
	}
	// Timestamps in the names sort lexicographically; oldest first.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-e.cfg.Backups] {
		if err := os.Remove(old); err != nil {
			e.logger.Warn("backup prune failed", "path", old, "error", err)
		}
	}
}

// atomicWrite writes data to path via a synced temp file and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
