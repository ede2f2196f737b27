// Package modelservice coordinates workspace storage, validation and the
// run index. It is shared by the REST API and the MCP server.
package modelservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kukula/lattice/internal/apperr"
	"github.com/kukula/lattice/internal/cases"
	"github.com/kukula/lattice/internal/checksum"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/index"
	"github.com/kukula/lattice/internal/models"
	"github.com/kukula/lattice/internal/output"
	"github.com/kukula/lattice/internal/schema"
	"github.com/kukula/lattice/internal/storage"
)

// InlineName is the document source used for content validated without a
// path.
const InlineName = "inline.yaml"

// ModelDetail is the full representation of a model file and its latest
// validation.
type ModelDetail struct {
	Path        string             `json:"path"`
	Content     string             `json:"content"`
	Checksum    string             `json:"checksum"`
	Valid       bool               `json:"valid"`
	Error       string             `json:"error,omitempty"`
	Report      *output.JSONReport `json:"report,omitempty"`
	Graph       *Graph             `json:"graph,omitempty"`
	ValidatedAt time.Time          `json:"validated_at"`
}

// ModelListItem is a lightweight item in a list response.
type ModelListItem struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Valid       bool      `json:"valid"`
	Errors      int       `json:"errors"`
	Warnings    int       `json:"warnings"`
	Unclear     int       `json:"unclear"`
	Entities    int       `json:"entities"`
	Error       string    `json:"error,omitempty"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Graph is the entity graph of one model file.
type Graph struct {
	Nodes []models.GraphNode `json:"nodes"`
	Links []models.GraphLink `json:"links"`
}

// SearchResult is a diagnostic matching a search query.
type SearchResult struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures a Service.
type Option func(*Service)

// WithEvents registers a callback invoked after every write or delete the
// service performs.
func WithEvents(cb index.EventCallback) Option {
	return func(s *Service) {
		s.events = cb
	}
}

// Service coordinates storage, validation and index operations.
type Service struct {
	store  storage.Provider
	db     index.ModelIndex
	eng    *engine.Engine
	events index.EventCallback
}

// NewService creates a new model service.
func NewService(store storage.Provider, db index.ModelIndex, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{store: store, db: db, eng: eng}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetModel reads a model file and validates its current content.
func (s *Service) GetModel(_ context.Context, path string) (*ModelDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	rec, res := index.Validate(s.eng, path, data)
	return buildDetail(path, data, rec, res), nil
}

// CreateModel writes a new model file and records its validation.
func (s *Service) CreateModel(_ context.Context, path string, content []byte) (*ModelDetail, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.index(path, content)
}

// UpdateModel writes updated content with optimistic concurrency: ifMatch,
// when set, must be the checksum of the current content.
func (s *Service) UpdateModel(_ context.Context, path string, content []byte, ifMatch string) (*ModelDetail, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(ifMatch, existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.index(path, content)
}

// DeleteModel removes a model file and its recorded run.
func (s *Service) DeleteModel(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.db.Delete(path); err != nil {
		return err
	}
	if s.events != nil {
		s.events(index.EventDeleted, path, nil)
	}
	return nil
}

// MoveModel renames a model file and revalidates it under its new path.
func (s *Service) MoveModel(_ context.Context, from, to string) (*ModelDetail, error) {
	if err := checkPath(to); err != nil {
		return nil, err
	}
	data, err := s.read(from)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Read(to); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Move(from, to); err != nil {
		return nil, err
	}
	if err := s.db.Delete(from); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events(index.EventDeleted, from, nil)
	}
	return s.index(to, data)
}

// ListModels returns a page of recorded runs filtered by status.
func (s *Service) ListModels(_ context.Context, limit, offset int, status string) ([]ModelListItem, int, error) {
	rows, total, err := s.db.ListRuns(limit, offset, status)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ModelListItem, len(rows))
	for i, r := range rows {
		items[i] = NewListItem(r)
	}
	return items, total, nil
}

// NewListItem summarizes a recorded run.
func NewListItem(r index.RunRow) ModelListItem {
	return ModelListItem{
		Path:        r.Path,
		Checksum:    r.Checksum,
		Valid:       r.Valid,
		Errors:      r.Errors,
		Warnings:    r.Warnings,
		Unclear:     r.Unclear,
		Entities:    r.Entities,
		Error:       r.LoadError,
		ValidatedAt: r.ValidatedAt,
	}
}

// Validate checks content without storing it. name selects the document
// format (Markdown frontmatter or YAML) and defaults to InlineName.
// Content that cannot be loaded or built yields apperr.ErrInvalidModel.
func (s *Service) Validate(_ context.Context, name string, content []byte) (*engine.Result, error) {
	if name == "" {
		name = InlineName
	}
	doc, err := schema.ParseFile(name, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidModel, err)
	}
	res, err := s.eng.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidModel, err)
	}
	return res, nil
}

// Cases derives test-case specifications from the model file at path.
func (s *Service) Cases(ctx context.Context, path string) (*cases.Set, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, err := s.Validate(ctx, path, data)
	if err != nil {
		return nil, err
	}
	return cases.Derive(res.Model, res.Analysis), nil
}

// Diagnostics returns recorded diagnostics matching f.
func (s *Service) Diagnostics(_ context.Context, f index.IssueFilter) ([]models.Issue, error) {
	issues, err := s.db.Issues(f)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(issues), nil
}

// Search finds recorded diagnostics whose message, code or entity contains
// query.
func (s *Service) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(rows))
	for i, r := range rows {
		out[i] = SearchResult{Path: r.Path, Code: r.Code, Message: r.Message}
	}
	return out, nil
}

// Graph returns the recorded entity graph of the model file at path.
func (s *Service) Graph(_ context.Context, path string) (*Graph, error) {
	if _, err := s.db.GetRun(path); err != nil {
		return nil, err
	}
	nodes, links, err := s.db.Graph(path)
	if err != nil {
		return nil, err
	}
	return &Graph{Nodes: nodes, Links: links}, nil
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// index validates and records content, then reports the change.
func (s *Service) index(path string, content []byte) (*ModelDetail, error) {
	rec, res, err := index.IndexFile(s.db, s.eng, path, content)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		kind := index.EventValidated
		if rec.Run.Failed() {
			kind = index.EventFailed
		}
		run := rec.Run
		s.events(kind, path, &run)
	}
	return buildDetail(path, content, rec, res), nil
}

func checkPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", apperr.ErrInvalidModel)
	}
	if !storage.IsModelPath(path) {
		return fmt.Errorf("%w: path must end with one of %s", apperr.ErrInvalidModel, strings.Join(schema.Extensions, ", "))
	}
	return nil
}

func buildDetail(path string, data []byte, rec *index.Record, res *engine.Result) *ModelDetail {
	d := &ModelDetail{
		Path:        path,
		Content:     string(data),
		Checksum:    rec.Run.Checksum,
		Valid:       rec.Run.Valid,
		Error:       rec.Run.LoadError,
		ValidatedAt: rec.Run.ValidatedAt,
	}
	if res != nil {
		rep := output.NewJSONReport(res)
		d.Report = &rep
		d.Graph = &Graph{Nodes: rec.Nodes, Links: rec.Links}
	}
	return d
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
