// Package pensee persists structured thinking sessions per project and
// serves them over MCP and HTTP. Thoughts move through five workflow
// stages (Scoping, Research & Spike, Implementation, Testing, Review);
// every accepted thought is validated, durably appended to the project's
// session file, and analyzed against the history it joined.
package pensee

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pensee/internal/analysis"
	"github.com/hazyhaar/pensee/internal/audit"
	"github.com/hazyhaar/pensee/internal/idgen"
	"github.com/hazyhaar/pensee/internal/store"
	"github.com/hazyhaar/pensee/internal/thought"
)

// Service is the thinking-session orchestrator.
type Service struct {
	registry *store.Registry
	logger   *slog.Logger
	config   *Config
	newID    idgen.Generator
	now      func() time.Time
	audit    *audit.SQLiteLogger // optional — audit trail
}

// ServiceOption customises Service construction.
type ServiceOption func(*Service)

// WithAudit attaches an audit logger; mutating operations are recorded.
func WithAudit(l *audit.SQLiteLogger) ServiceOption {
	return func(svc *Service) { svc.audit = l }
}

// WithIDGenerator overrides the thought ID strategy (default: "th_" + UUIDv7).
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// New creates a pensee Service.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := store.NewRegistry(cfg.StorageDir, cfg.storeConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("pensee: %w", err)
	}

	svc := &Service{
		registry: registry,
		logger:   logger,
		config:   cfg,
		newID:    idgen.Prefixed("th_", idgen.UUIDv7()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ProcessResult is the outcome of ProcessThought: the stored thought plus
// its analysis against the history it was appended to.
type ProcessResult struct {
	Thought  *thought.Thought   `json:"thought"`
	Analysis *analysis.Analysis `json:"thoughtAnalysis"`
}

// project substitutes the configured default project for a blank id.
func (svc *Service) project(id string) string {
	if strings.TrimSpace(id) == "" {
		return svc.config.DefaultProject
	}
	return id
}

// ProcessThought validates, persists and analyzes one thought.
func (svc *Service) ProcessThought(ctx context.Context, req *ThoughtRequest) (*ProcessResult, error) {
	in, err := normalize(req, svc.config.DefaultProject)
	if err != nil {
		return nil, err
	}
	th, err := thought.New(in, svc.newID(), svc.now().UnixMilli())
	if err != nil {
		return nil, err
	}

	eng := svc.registry.Resolve(th.ProjectID)
	if err := eng.Append(ctx, th); err != nil {
		return nil, err
	}
	hist, err := eng.Load(ctx)
	if err != nil {
		return nil, err
	}

	svc.logger.Info("thought processed",
		"project_id", th.ProjectID, "thought_number", th.ThoughtNumber, "stage", th.Stage)
	return &ProcessResult{Thought: th, Analysis: analysis.Analyze(th, hist)}, nil
}

// History returns a project's thoughts in insertion order.
func (svc *Service) History(ctx context.Context, projectID string) ([]*thought.Thought, error) {
	return svc.registry.Resolve(svc.project(projectID)).Load(ctx)
}

// GenerateSummary aggregates a project's history.
func (svc *Service) GenerateSummary(ctx context.Context, projectID string) (*analysis.Summary, error) {
	hist, err := svc.registry.Resolve(svc.project(projectID)).Load(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.Summarize(hist), nil
}

// ClearHistory removes all thoughts for a project. Idempotent.
func (svc *Service) ClearHistory(ctx context.Context, projectID string) error {
	if err := svc.registry.Resolve(svc.project(projectID)).Clear(ctx); err != nil {
		return err
	}
	svc.logger.Info("history cleared", "project_id", store.SanitizeProjectID(svc.project(projectID)))
	return nil
}

// ExportSession writes a project's full session to filePath.
func (svc *Service) ExportSession(ctx context.Context, projectID, filePath string) error {
	if err := requireFilePath(filePath, "file_path"); err != nil {
		return err
	}
	return svc.registry.Resolve(svc.project(projectID)).Export(ctx, filePath)
}

// ImportSession replaces a project's history with the session at filePath.
func (svc *Service) ImportSession(ctx context.Context, projectID, filePath string) error {
	if err := requireFilePath(filePath, "file_path"); err != nil {
		return err
	}
	if err := svc.registry.Resolve(svc.project(projectID)).Import(ctx, filePath); err != nil {
		return err
	}
	svc.logger.Info("session imported",
		"project_id", store.SanitizeProjectID(svc.project(projectID)), "source", filePath)
	return nil
}

// RelatedThoughts finds up to three thoughts related to the thought with
// the given number. When numbers repeat, the most recent occurrence wins.
func (svc *Service) RelatedThoughts(ctx context.Context, projectID string, thoughtNumber int) ([]*thought.Thought, error) {
	hist, err := svc.registry.Resolve(svc.project(projectID)).Load(ctx)
	if err != nil {
		return nil, err
	}
	var current *thought.Thought
	for _, th := range hist {
		if th.ThoughtNumber == thoughtNumber {
			current = th
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no thought with number %d", ErrInvalidInput, thoughtNumber)
	}
	return analysis.Related(current, hist), nil
}
