// Package models defines the workspace types shared by storage, the index
// and the service layer.
package models

import "time"

// ModelFile is a lightweight representation of a model document on disk,
// returned by list operations.
type ModelFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Issue is one stored diagnostic of a model file.
type Issue struct {
	Path       string `json:"path"`
	Seq        int    `json:"seq"`
	Severity   string `json:"severity"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Entity     string `json:"entity,omitempty"`
	State      string `json:"state,omitempty"`
	Transition string `json:"transition,omitempty"`
}

// GraphNode is an entity of a model file.
type GraphNode struct {
	ID       string   `json:"id"`
	Stateful bool     `json:"stateful"`
	States   []string `json:"states,omitempty"`
}

// GraphLink is a relationship edge between two entities. Target may name
// an entity that is not defined.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // relationship kind or "ref"
}
