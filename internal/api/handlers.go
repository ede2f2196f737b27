package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kukula/lattice/internal/apperr"
	"github.com/kukula/lattice/internal/index"
	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/output"
)

// Handler holds API route handlers.
type Handler struct {
	svc *modelservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *modelservice.Service) *Handler {
	return &Handler{svc: svc}
}

// modelPath extracts the model path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients (e.g.
// billing%2Forder.yaml).
func modelPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("model already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrInvalidModel):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func setETag(w http.ResponseWriter, sum string) {
	w.Header().Set("ETag", `"`+sum+`"`)
}

// ListModels handles GET /api/models.
//
//	@Summary		List model files with their latest validation
//	@Tags			models
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			status	query		string	false	"Filter by status"	Enums(valid, invalid, failed)
//	@Success		200		{object}	ModelListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := q.Get("status")
	switch status {
	case "", index.StatusValid, index.StatusInvalid, index.StatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("status must be one of valid, invalid, failed"))
		return
	}

	items, total, err := h.svc.ListModels(r.Context(), limit, offset, status)
	if err != nil {
		writeServiceError(w, "list models", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ModelListResponse{Models: nonNil(items), Total: total})
}

// GetModel handles GET /api/models/*.
//
//	@Summary		Get a model file and its validation report
//	@Tags			models
//	@Produce		json
//	@Param			path	path		string	true	"Model path"
//	@Success		200		{object}	ModelDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{path} [get]
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	path := modelPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	m, err := h.svc.GetModel(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get model", path, err)
		return
	}
	setETag(w, m.Checksum)
	writeJSON(w, http.StatusOK, m)
}

// CreateModel handles POST /api/models.
//
//	@Summary		Create a new model file
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateModelRequest	true	"Model to create"
//	@Success		201		{object}	ModelDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models [post]
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	m, err := h.svc.CreateModel(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeServiceError(w, "create model", req.Path, err)
		return
	}
	setETag(w, m.Checksum)
	writeJSON(w, http.StatusCreated, m)
}

// UpdateModel handles PUT /api/models/*.
//
//	@Summary		Update a model file with optimistic concurrency
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Model path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateModelRequest	true	"Updated content"
//	@Success		200		{object}	ModelDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{path} [put]
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	path := modelPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	m, err := h.svc.UpdateModel(r.Context(), path, []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "update model", path, err)
		return
	}
	setETag(w, m.Checksum)
	writeJSON(w, http.StatusOK, m)
}

// MoveModel handles POST /api/models/move.
//
//	@Summary		Rename a model file
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveModelRequest	true	"Source and destination paths"
//	@Success		200		{object}	ModelDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/move [post]
func (h *Handler) MoveModel(w http.ResponseWriter, r *http.Request) {
	var req MoveModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	m, err := h.svc.MoveModel(r.Context(), req.From, req.To)
	if err != nil {
		writeServiceError(w, "move model", req.From, err)
		return
	}
	setETag(w, m.Checksum)
	writeJSON(w, http.StatusOK, m)
}

// DeleteModel handles DELETE /api/models/*.
//
//	@Summary		Delete a model file
//	@Tags			models
//	@Param			path	path	string	true	"Model path"
//	@Success		204		"Model deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{path} [delete]
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	path := modelPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteModel(r.Context(), path); err != nil {
		writeServiceError(w, "delete model", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles POST /api/validate.
//
//	@Summary		Validate model content without storing it
//	@Tags			validate
//	@Accept			json
//	@Produce		json,plain
//	@Param			body	body		ValidateRequest	true	"Content to validate"
//	@Success		200		{object}	ValidationReport
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Format {
	case "", output.FormatJSON, output.FormatText:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be json or text"))
		return
	}
	res, err := h.svc.Validate(r.Context(), req.Name, []byte(req.Content))
	if err != nil {
		writeServiceError(w, "validate", req.Name, err)
		return
	}
	if req.Format == output.FormatText {
		writeText(w, http.StatusOK, output.Text(res))
		return
	}
	writeJSON(w, http.StatusOK, output.NewJSONReport(res))
}

// Graph handles GET /api/graph/*.
//
//	@Summary		Get the entity graph of a model file
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Model path"
//	@Success		200		{object}	GraphResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/{path} [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	path := modelPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	g, err := h.svc.Graph(r.Context(), path)
	if err != nil {
		writeServiceError(w, "graph", path, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Cases handles GET /api/cases/*.
//
//	@Summary		Derive test-case specifications from a model file
//	@Tags			cases
//	@Produce		json
//	@Param			path	path		string	true	"Model path"
//	@Success		200		{object}	cases.Set
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{path} [get]
func (h *Handler) Cases(w http.ResponseWriter, r *http.Request) {
	path := modelPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	set, err := h.svc.Cases(r.Context(), path)
	if err != nil {
		writeServiceError(w, "cases", path, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// Diagnostics handles GET /api/diagnostics.
//
//	@Summary		List recorded diagnostics across the workspace
//	@Tags			diagnostics
//	@Produce		json
//	@Param			path		query		string	false	"Model path"
//	@Param			severity	query		string	false	"Severity"	Enums(error, warning, unclear)
//	@Param			code		query		string	false	"Diagnostic code"
//	@Param			limit		query		int		false	"Max results"
//	@Success		200			{object}	DiagnosticsResponse
//	@Security		BearerAuth
//	@Router			/diagnostics [get]
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	issues, err := h.svc.Diagnostics(r.Context(), index.IssueFilter{
		Path:     q.Get("path"),
		Severity: q.Get("severity"),
		Code:     q.Get("code"),
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(w, "diagnostics", q.Get("path"), err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticsResponse{Diagnostics: issues})
}

// Search handles GET /api/search.
//
//	@Summary		Search recorded diagnostics
//	@Tags			diagnostics
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", "", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNil(results)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
