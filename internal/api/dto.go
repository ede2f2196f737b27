package api

import (
	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/models"
	"github.com/kukula/lattice/internal/output"
)

// CreateModelRequest is the request body for creating a model file.
type CreateModelRequest struct {
	Path    string `json:"path" example:"billing/order.yaml" validate:"required"`
	Content string `json:"content" example:"entities:\n  Order:\n    states: [draft]" validate:"required"`
}

// UpdateModelRequest is the request body for updating a model file.
type UpdateModelRequest struct {
	Content string `json:"content" example:"entities:\n  Order:\n    states: [draft]" validate:"required"`
}

// MoveModelRequest is the request body for renaming a model file.
type MoveModelRequest struct {
	From string `json:"from" example:"order.yaml" validate:"required"`
	To   string `json:"to" example:"billing/order.yaml" validate:"required"`
}

// ValidateRequest is the request body for ad-hoc validation.
type ValidateRequest struct {
	Content string `json:"content" validate:"required"`
	// Name selects the document format by extension (default inline.yaml).
	Name string `json:"name,omitempty" example:"order.md"`
	// Format is "json" (default) or "text".
	Format string `json:"format,omitempty" example:"json"`
}

// ModelDetail is the full model response type (aliased from the domain layer).
type ModelDetail = modelservice.ModelDetail

// ModelListItem is a lightweight item in a list response (aliased from the domain layer).
type ModelListItem = modelservice.ModelListItem

// ModelListResponse wraps paginated model listings.
type ModelListResponse struct {
	Models []ModelListItem `json:"models" validate:"required"`
	Total  int             `json:"total" example:"42" validate:"required"`
}

// ValidationReport is the ad-hoc validation response.
type ValidationReport = output.JSONReport

// GraphResponse is the entity graph of one model file.
type GraphResponse = modelservice.Graph

// DiagnosticsResponse wraps recorded diagnostics.
type DiagnosticsResponse struct {
	Diagnostics []models.Issue `json:"diagnostics" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []modelservice.SearchResult `json:"results" validate:"required"`
}
