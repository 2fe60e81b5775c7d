package pensee

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pensee/internal/audit"
	"github.com/hazyhaar/pensee/internal/dbopen"
)

var testImpl = &mcp.Implementation{Name: "pensee-test", Version: "0.1.0"}

// mcpSession creates a Service, registers MCP tools, and returns a connected
// client session that can call tools end-to-end.
func mcpSession(t *testing.T, opts ...ServiceOption) (*Service, *mcp.ClientSession) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(&Config{StorageDir: t.TempDir()}, logger, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)
	svc.RegisterPrompts(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return svc, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ProcessThoughtAndSummary(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "pensee_process_thought", map[string]any{
		"thought":             "define the scope",
		"thought_number":      1,
		"total_thoughts":      3,
		"next_thought_needed": true,
		"stage":               "Scoping",
		"tags":                []string{"kickoff"},
	})

	var res struct {
		Thought struct {
			ID    string `json:"id"`
			Stage string `json:"stage"`
		} `json:"thought"`
		Analysis struct {
			Guidance struct {
				RecommendedNextThoughtNeeded bool `json:"recommendedNextThoughtNeeded"`
			} `json:"guidance"`
		} `json:"thoughtAnalysis"`
	}
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal result: %v\n%s", err, text)
	}
	if res.Thought.ID == "" || res.Thought.Stage != "Scoping" {
		t.Errorf("thought = %+v", res.Thought)
	}
	if !res.Analysis.Guidance.RecommendedNextThoughtNeeded {
		t.Error("guidance should recommend continuing at 1/3")
	}

	summary := callTool(t, session, "pensee_generate_summary", map[string]any{})
	var s Summary
	if err := json.Unmarshal([]byte(summary), &s); err != nil {
		t.Fatalf("unmarshal summary: %v\n%s", err, summary)
	}
	if s.TotalThoughts != 1 || s.Stages["Scoping"] != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestMCP_HistoryAndClear(t *testing.T) {
	_, session := mcpSession(t)

	callTool(t, session, "pensee_process_thought", map[string]any{
		"thought": "x", "thought_number": 1, "total_thoughts": 1, "next_thought_needed": false,
	})

	var hist []json.RawMessage
	if err := json.Unmarshal([]byte(callTool(t, session, "pensee_history", map[string]any{})), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}

	cleared := callTool(t, session, "pensee_clear_history", map[string]any{})
	if !strings.Contains(cleared, "success") {
		t.Errorf("clear result = %s", cleared)
	}

	if err := json.Unmarshal([]byte(callTool(t, session, "pensee_history", map[string]any{})), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Fatalf("history length after clear = %d, want 0", len(hist))
	}
}

func TestMCP_ExportImport(t *testing.T) {
	_, session := mcpSession(t)

	callTool(t, session, "pensee_process_thought", map[string]any{
		"thought": "portable", "thought_number": 1, "total_thoughts": 1,
		"next_thought_needed": false, "project_id": "src",
	})

	path := filepath.Join(t.TempDir(), "session.json")
	callTool(t, session, "pensee_export_session", map[string]any{
		"file_path": path, "project_id": "src",
	})
	callTool(t, session, "pensee_import_session", map[string]any{
		"file_path": path, "project_id": "dst",
	})

	var hist []struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal([]byte(callTool(t, session, "pensee_history", map[string]any{
		"project_id": "dst",
	})), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Thought != "portable" {
		t.Errorf("imported history = %+v", hist)
	}
}

// WHAT: validation failures surface as tool errors, not protocol errors,
// so the session stays usable.
func TestMCP_InvalidInputIsToolError(t *testing.T) {
	_, session := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "pensee_process_thought",
		Arguments: map[string]any{
			"thought": "", "thought_number": 1, "total_thoughts": 1, "next_thought_needed": false,
		},
	})
	if err != nil {
		t.Fatalf("CallTool protocol error: %v", err)
	}
	// GetError always returns nil on clients (the field is server-only);
	// the wire-visible signal is IsError.
	if !result.IsError {
		t.Fatal("expected tool error for empty thought")
	}

	// Session still works.
	callTool(t, session, "pensee_generate_summary", map[string]any{})
}

// WHAT: with auditing enabled, mutating tools leave rows in audit_log.
func TestMCP_AuditTrail(t *testing.T) {
	db := dbopen.OpenMemory(t)
	auditLogger := audit.NewSQLiteLogger(db)
	if err := auditLogger.Init(); err != nil {
		t.Fatal(err)
	}

	_, session := mcpSession(t, WithAudit(auditLogger))

	callTool(t, session, "pensee_process_thought", map[string]any{
		"thought": "tracked", "thought_number": 1, "total_thoughts": 1,
		"next_thought_needed": false, "project_id": "alpha",
	})
	callTool(t, session, "pensee_clear_history", map[string]any{"project_id": "alpha"})

	auditLogger.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action IN ('process_thought','clear_history') AND project_id='alpha' AND transport='mcp'").Scan(&count)
	if count != 2 {
		t.Fatalf("audit rows = %d, want 2", count)
	}
}

func TestMCP_Prompts(t *testing.T) {
	_, session := mcpSession(t)

	res, err := session.GetPrompt(context.Background(), &mcp.GetPromptParams{
		Name: "scoping_prompt",
		Arguments: map[string]string{
			"problem_statement": "migrate the session store",
		},
	})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(res.Messages) == 0 {
		t.Fatal("prompt returned no messages")
	}
	tc, ok := res.Messages[0].Content.(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Messages[0].Content)
	}
	if !strings.Contains(tc.Text, "migrate the session store") {
		t.Errorf("prompt text missing problem statement:\n%s", tc.Text)
	}
}
