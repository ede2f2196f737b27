package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/output"
	"github.com/kukula/lattice/internal/storage"
	"github.com/kukula/lattice/internal/testutil"
	"github.com/kukula/lattice/internal/testutil/fixtures"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	svc, store := testutil.TestService(t)
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "validate_model":
		result, err = srv.validateModel(ctx, req)
	case "save_model":
		result, err = srv.saveModel(ctx, req)
	case "read_report":
		result, err = srv.readReport(ctx, req)
	case "list_models":
		result, err = srv.listModels(ctx, req)
	case "get_model_graph":
		result, err = srv.getModelGraph(ctx, req)
	case "derive_cases":
		result, err = srv.deriveCases(ctx, req)
	case "search_diagnostics":
		result, err = srv.searchDiagnostics(ctx, req)
	case "get_model_format":
		result, err = srv.getModelFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestValidateModel(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "validate_model", map[string]any{"content": fixtures.TaskUnreachable})
	var rep output.JSONReport
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Valid || rep.ErrorCount != 1 || rep.Issues[0].State != "secret" {
		t.Errorf("report = %+v", rep)
	}

	r = callTool(t, srv, "validate_model", map[string]any{"content": fixtures.RoleOrphan, "format": "text"})
	if !strings.HasSuffix(resultText(r), "Validation passed with 1 warning(s)\n") {
		t.Errorf("text = %q", resultText(r))
	}

	r = callTool(t, srv, "validate_model", map[string]any{"content": "entities:\n  A:\n    transitions:\n      - to: b\n"})
	if !r.IsError {
		t.Error("expected error for unbuildable model")
	}

	r = callTool(t, srv, "validate_model", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing content")
	}
}

func TestSaveAndReadReport(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "save_model", map[string]any{"path": "task.yaml", "content": fixtures.TaskUnreachable})
	if r.IsError {
		t.Fatalf("save: %s", resultText(r))
	}
	// Saving again overwrites.
	r = callTool(t, srv, "save_model", map[string]any{"path": "task.yaml", "content": fixtures.OrderLifecycle})
	if r.IsError {
		t.Fatalf("overwrite: %s", resultText(r))
	}
	data, err := store.Read("task.yaml")
	if err != nil || string(data) != fixtures.OrderLifecycle {
		t.Errorf("stored = %q, %v", data, err)
	}

	r = callTool(t, srv, "read_report", map[string]any{"path": "task.yaml"})
	var m modelservice.ModelDetail
	if err := json.Unmarshal([]byte(resultText(r)), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !m.Valid || m.Report == nil || len(m.Report.Coverage) != 1 {
		t.Errorf("detail = %+v", m)
	}

	r = callTool(t, srv, "save_model", map[string]any{"path": "notes.txt", "content": "x"})
	if !r.IsError {
		t.Error("expected error for non-model path")
	}
}

func TestReadReportMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_report", map[string]any{"path": "nope.yaml"})
	if !r.IsError || resultText(r) != "not found: nope.yaml" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestListModels(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "list_models", map[string]any{})); text != "no models found" {
		t.Errorf("empty list = %q", text)
	}

	callTool(t, srv, "save_model", map[string]any{"path": "a.yaml", "content": fixtures.RoleOrphan})
	callTool(t, srv, "save_model", map[string]any{"path": "b.yaml", "content": fixtures.TaskUnreachable})

	text := resultText(callTool(t, srv, "list_models", map[string]any{}))
	want := "a.yaml\tvalid\t0 error(s), 1 warning(s), 0 unclear\n" +
		"b.yaml\tinvalid\t1 error(s), 0 warning(s), 0 unclear"
	if text != want {
		t.Errorf("list = %q, want %q", text, want)
	}

	text = resultText(callTool(t, srv, "list_models", map[string]any{"status": "invalid"}))
	if !strings.HasPrefix(text, "b.yaml\t") || strings.Contains(text, "a.yaml") {
		t.Errorf("filtered list = %q", text)
	}
}

func TestGraphAndCases(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "save_model", map[string]any{"path": "order.yaml", "content": fixtures.OrderLifecycle})

	var g modelservice.Graph
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "get_model_graph", map[string]any{"path": "order.yaml"}))), &g); err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("nodes = %+v", g.Nodes)
	}

	text := resultText(callTool(t, srv, "derive_cases", map[string]any{"path": "order.yaml"}))
	if !strings.Contains(text, `"name": "test_order_draft_to_submitted"`) {
		t.Errorf("cases = %s", text)
	}

	r := callTool(t, srv, "get_model_graph", map[string]any{"path": "missing.yaml"})
	if !r.IsError {
		t.Error("expected error for missing graph")
	}
}

func TestSearchDiagnostics(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "save_model", map[string]any{"path": "task.yaml", "content": fixtures.TaskUnreachable})

	text := resultText(callTool(t, srv, "search_diagnostics", map[string]any{"query": "secret"}))
	if !strings.Contains(text, "UNREACHABLE_STATE") {
		t.Errorf("search = %s", text)
	}
	text = resultText(callTool(t, srv, "search_diagnostics", map[string]any{"query": "nothing-matches"}))
	if text != "no diagnostics found" {
		t.Errorf("empty search = %q", text)
	}
}

func TestModelFormatContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_model_format", map[string]any{}))
	if !strings.HasPrefix(text, "# Lattice Model Format Contract") {
		t.Errorf("contract = %q", text[:40])
	}

	contents, err := srv.readModelFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ModelFormatURI || tc.Text != ModelFormatContract {
		t.Errorf("resource = %+v", contents[0])
	}
}
