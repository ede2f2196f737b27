// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Lattice validation tools to the semantic-analysis collaborator
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kukula/lattice/internal/apperr"
	"github.com/kukula/lattice/internal/index"
	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/output"
)

// ModelFormatURI is the resource URI of the model format contract.
const ModelFormatURI = "lattice://model-format"

// Server wraps the MCP server with Lattice tools.
type Server struct {
	mcp *server.MCPServer
	svc *modelservice.Service
}

// New creates a new MCP server with all Lattice tools registered.
func New(svc *modelservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lattice",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("validate_model",
		mcp.WithDescription("Validate model content without storing it. Returns the report "+
			"with errors, warnings, unclear items and state coverage."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Model YAML, or Markdown with YAML frontmatter")),
		mcp.WithString("name", mcp.Description("File name selecting the format (default inline.yaml)")),
		mcp.WithString("format", mcp.Description("Report format"), mcp.Enum(output.FormatJSON, output.FormatText)),
	), s.validateModel)

	s.mcp.AddTool(mcp.NewTool("save_model",
		mcp.WithDescription("Create or overwrite a model file in the workspace and validate it. "+
			"Content MUST follow the model format contract; read it first via get_model_format "+
			"or the "+ModelFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path (must end with .yaml, .yml or .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Model content")),
	), s.saveModel)

	s.mcp.AddTool(mcp.NewTool("read_report",
		mcp.WithDescription("Read a stored model file together with its current validation report."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the model file")),
	), s.readReport)

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List model files in the workspace with their latest validation status."),
		mcp.WithString("status", mcp.Description("Optional status filter"),
			mcp.Enum(index.StatusValid, index.StatusInvalid, index.StatusFailed)),
	), s.listModels)

	s.mcp.AddTool(mcp.NewTool("get_model_graph",
		mcp.WithDescription("Return the entity graph (entities, states and relationships) of a model file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the model file")),
	), s.getModelGraph)

	s.mcp.AddTool(mcp.NewTool("derive_cases",
		mcp.WithDescription("Derive test-case specifications (transitions, blocked skips, happy paths, "+
			"invariants) from a model file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the model file")),
	), s.deriveCases)

	s.mcp.AddTool(mcp.NewTool("search_diagnostics",
		mcp.WithDescription("Search recorded diagnostics by message, code or entity."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDiagnostics)

	s.mcp.AddTool(mcp.NewTool("get_model_format",
		mcp.WithDescription("Returns the Lattice model format contract. "+
			"Call this before writing models to ensure correct structure."),
	), s.getModelFormat)

	// Resource: model format contract.
	s.mcp.AddResource(
		mcp.NewResource(ModelFormatURI, "Model Format Contract",
			mcp.WithResourceDescription("YAML model format that all Lattice models must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readModelFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) validateModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Validate(ctx, req.GetString("name", ""), []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", output.FormatJSON) == output.FormatText {
		return mcp.NewToolResultText(output.Text(res)), nil
	}
	return jsonResult(output.NewJSONReport(res))
}

func (s *Server) saveModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	m, err := s.svc.CreateModel(ctx, path, []byte(content))
	if errors.Is(err, apperr.ErrAlreadyExists) {
		m, err = s.svc.UpdateModel(ctx, path, []byte(content), "")
	}
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(m)
}

func (s *Server) readReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.GetModel(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(m)
}

func (s *Server) listModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListModels(ctx, 1000, 0, req.GetString("status", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no models found"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		status := index.StatusValid
		switch {
		case it.Error != "":
			status = index.StatusFailed
		case !it.Valid:
			status = index.StatusInvalid
		}
		lines[i] = fmt.Sprintf("%s\t%s\t%d error(s), %d warning(s), %d unclear",
			it.Path, status, it.Errors, it.Warnings, it.Unclear)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getModelGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.svc.Graph(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(g)
}

func (s *Server) deriveCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	set, err := s.svc.Cases(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(set)
}

func (s *Server) searchDiagnostics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no diagnostics found"), nil
	}
	return jsonResult(results)
}

func (s *Server) getModelFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ModelFormatContract), nil
}

func (s *Server) readModelFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ModelFormatURI,
			MIMEType: "text/markdown",
			Text:     ModelFormatContract,
		},
	}, nil
}
