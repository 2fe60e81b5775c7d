package pensee

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pensee/internal/audit"
	"github.com/hazyhaar/pensee/internal/kit"
	"github.com/hazyhaar/pensee/internal/store"
)

// RegisterMCP registers all pensee tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerProcessThought(srv)
	svc.registerGenerateSummary(srv)
	svc.registerHistory(srv)
	svc.registerClearHistory(srv)
	svc.registerExportSession(srv)
	svc.registerImportSession(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// audited wraps an endpoint with the audit middleware when auditing is on.
func (svc *Service) audited(action string, endpoint kit.Endpoint) kit.Endpoint {
	if svc.audit == nil {
		return endpoint
	}
	return audit.Middleware(svc.audit, action)(endpoint)
}

// projectEnrich tags the request context with the sanitized project ID.
func projectEnrich(projectID string) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return kit.WithProjectID(ctx, store.SanitizeProjectID(projectID))
	}
}

func (svc *Service) registerProcessThought(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_process_thought",
		Description: "Record a thought in the current thinking session and analyze it against the project history",
		InputSchema: inputSchema(map[string]any{
			"thought":                map[string]any{"type": "string", "description": "The thought content"},
			"thought_number":         map[string]any{"type": "integer", "description": "Position in the sequence, starting at 1"},
			"total_thoughts":         map[string]any{"type": "integer", "description": "Planned total number of thoughts"},
			"next_thought_needed":    map[string]any{"type": "boolean", "description": "Whether another thought should follow"},
			"stage":                  map[string]any{"type": "string", "description": "Workflow stage: Scoping, Research & Spike, Implementation, Testing, Review"},
			"tags":                   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"axioms_used":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"assumptions_challenged": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"files_touched":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"tests_to_run":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"dependencies":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"risk_level":             map[string]any{"type": "string", "description": "low, medium or high"},
			"confidence_score":       map[string]any{"type": "number", "description": "Confidence between 0.0 and 1.0"},
			"project_id":             map[string]any{"type": "string", "description": "Project the thought belongs to"},
		}, []string{"thought", "thought_number", "total_thoughts", "next_thought_needed"}),
	}

	endpoint := svc.audited("process_thought", func(ctx context.Context, r any) (any, error) {
		return svc.ProcessThought(ctx, r.(*ThoughtRequest))
	})

	decode := func(r *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var p ThoughtRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &p, EnrichCtx: projectEnrich(p.ProjectID)}, nil
	}

	kit.RegisterTool(srv, tool, endpoint, decode)
}

type projectReq struct {
	ProjectID string `json:"project_id"`
}

func decodeProjectReq(r *mcp.CallToolRequest) (*kit.DecodeResult, error) {
	var p projectReq
	if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
		return nil, err
	}
	return &kit.DecodeResult{Request: &p, EnrichCtx: projectEnrich(p.ProjectID)}, nil
}

func projectSchema() map[string]any {
	return inputSchema(map[string]any{
		"project_id": map[string]any{"type": "string", "description": "Project to operate on (default: \"default\")"},
	}, nil)
}

func (svc *Service) registerGenerateSummary(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_generate_summary",
		Description: "Generate a summary of the thinking process for a project",
		InputSchema: projectSchema(),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.GenerateSummary(ctx, r.(*projectReq).ProjectID)
	}

	kit.RegisterTool(srv, tool, endpoint, decodeProjectReq)
}

func (svc *Service) registerHistory(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_history",
		Description: "List all thoughts recorded for a project in order",
		InputSchema: projectSchema(),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.History(ctx, r.(*projectReq).ProjectID)
	}

	kit.RegisterTool(srv, tool, endpoint, decodeProjectReq)
}

type statusResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (svc *Service) registerClearHistory(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_clear_history",
		Description: "Clear the thought history for a project",
		InputSchema: projectSchema(),
	}

	endpoint := svc.audited("clear_history", func(ctx context.Context, r any) (any, error) {
		if err := svc.ClearHistory(ctx, r.(*projectReq).ProjectID); err != nil {
			return nil, err
		}
		return &statusResult{Status: "success", Message: "Thought history cleared"}, nil
	})

	kit.RegisterTool(srv, tool, endpoint, decodeProjectReq)
}

type fileReq struct {
	FilePath  string `json:"file_path"`
	ProjectID string `json:"project_id"`
}

func decodeFileReq(r *mcp.CallToolRequest) (*kit.DecodeResult, error) {
	var p fileReq
	if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
		return nil, err
	}
	return &kit.DecodeResult{Request: &p, EnrichCtx: projectEnrich(p.ProjectID)}, nil
}

func fileSchema(pathDesc string) map[string]any {
	return inputSchema(map[string]any{
		"file_path":  map[string]any{"type": "string", "description": pathDesc},
		"project_id": map[string]any{"type": "string", "description": "Project to operate on (default: \"default\")"},
	}, []string{"file_path"})
}

func (svc *Service) registerExportSession(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_export_session",
		Description: "Export the current thinking session to a file",
		InputSchema: fileSchema("Path to save the exported session"),
	}

	endpoint := svc.audited("export_session", func(ctx context.Context, r any) (any, error) {
		p := r.(*fileReq)
		if err := svc.ExportSession(ctx, p.ProjectID, p.FilePath); err != nil {
			return nil, err
		}
		return &statusResult{Status: "success", Message: "Session exported to " + p.FilePath}, nil
	})

	kit.RegisterTool(srv, tool, endpoint, decodeFileReq)
}

func (svc *Service) registerImportSession(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pensee_import_session",
		Description: "Import a thinking session from a file, replacing the project history",
		InputSchema: fileSchema("Path to the session file to import"),
	}

	endpoint := svc.audited("import_session", func(ctx context.Context, r any) (any, error) {
		p := r.(*fileReq)
		if err := svc.ImportSession(ctx, p.ProjectID, p.FilePath); err != nil {
			return nil, err
		}
		return &statusResult{Status: "success", Message: "Session imported from " + p.FilePath}, nil
	})

	kit.RegisterTool(srv, tool, endpoint, decodeFileReq)
}
