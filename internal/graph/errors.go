package graph

import (
	"fmt"
	"strings"

	"github.com/kukula/lattice/internal/ir"
)

// FieldIssue is one invalid field of a raw definition.
type FieldIssue struct {
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i FieldIssue) String() string {
	s := i.Path + ": " + i.Message
	switch {
	case i.Source != "" && i.Line > 0:
		return fmt.Sprintf("%s:%d: %s", i.Source, i.Line, s)
	case i.Source != "":
		return i.Source + ": " + s
	}
	return s
}

// FieldError rejects malformed definitions before any IR is built.
type FieldError struct {
	Issues []FieldIssue
}

func (e *FieldError) Error() string {
	if len(e.Issues) == 1 {
		return "graph: invalid definition: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("graph: %d invalid fields: %s", len(e.Issues), strings.Join(parts, "; "))
}

// DuplicateDefinitionError lists definitions that share a name but
// disagree on content. The model returned alongside it keeps the first
// definition of each.
type DuplicateDefinitionError struct {
	Conflicts []ir.Conflict
}

func (e *DuplicateDefinitionError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("graph: %d duplicate definition(s): %s", len(e.Conflicts), strings.Join(parts, "; "))
}
