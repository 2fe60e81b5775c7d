package store

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"log/slog"
)

// DefaultProjectID is used when a caller supplies no project identifier.
const DefaultProjectID = "default"

// projectIDUnsafe matches every character that may not appear in a file
// name derived from a project identifier.
var projectIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeProjectID maps an arbitrary identifier onto the filename-safe
// alphabet. Distinct inputs can collide after sanitization; colliding
// identifiers share a session on purpose rather than erroring.
func SanitizeProjectID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultProjectID
	}
	id = projectIDUnsafe.ReplaceAllString(id, "_")
	if id == "" {
		return DefaultProjectID
	}
	return id
}

// Registry hands out one Engine per project so that all in-process callers
// of the same project funnel through the same mutex.
type Registry struct {
	dir    string
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates the storage root directory if needed and returns a
// registry serving engines out of it.
func NewRegistry(dir string, cfg Config, logger *slog.Logger) (*Registry, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Registry{
		dir:     dir,
		cfg:     cfg,
		logger:  logger,
		engines: make(map[string]*Engine),
	}, nil
}

// Dir returns the storage root directory.
func (r *Registry) Dir() string { return r.dir }

// Resolve returns the engine for projectID, creating it on first use.
// The identifier is sanitized first, so every spelling that maps to the
// same file also maps to the same engine.
func (r *Registry) Resolve(projectID string) *Engine {
	id := SanitizeProjectID(projectID)

	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engines[id]
	if !ok {
		eng = NewEngine(r.dir, id, r.cfg, r.logger)
		r.engines[id] = eng
	}
	return eng
}

// Projects lists the project identifiers with a live engine, for
// diagnostics. Projects persisted by earlier runs appear only after a
// Resolve touches them.
func (r *Registry) Projects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.engines))
	for id := range r.engines {
		out = append(out, id)
	}
	return out
}
