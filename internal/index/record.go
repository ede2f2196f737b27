package index

import (
	"time"

	"github.com/kukula/lattice/internal/checksum"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/models"
	"github.com/kukula/lattice/internal/schema"
)

// Record is everything the index stores for one validation of a model file.
type Record struct {
	Run    RunRow
	Issues []models.Issue
	Nodes  []models.GraphNode
	Links  []models.GraphLink
}

// Validate decodes data as the model file at path and runs eng over it.
// A file that cannot be loaded or built yields a failed run carrying the
// error text and a nil result; it is not returned as an error.
func Validate(eng *engine.Engine, path string, data []byte) (*Record, *engine.Result) {
	rec := &Record{Run: RunRow{
		Path:        path,
		Checksum:    checksum.Sum(data),
		ValidatedAt: time.Now().UTC(),
	}}

	doc, err := schema.ParseFile(path, data)
	if err != nil {
		rec.Run.LoadError = err.Error()
		return rec, nil
	}
	res, err := eng.Validate(doc)
	if err != nil {
		rec.Run.LoadError = err.Error()
		return rec, nil
	}

	s := res.Report.Summary
	rec.Run.Valid = res.Report.OK()
	rec.Run.Errors = s.Errors
	rec.Run.Warnings = s.Warnings
	rec.Run.Unclear = s.Unclear
	rec.Run.StatesTotal = s.StatesTotal
	rec.Run.StatesReachable = s.StatesReachable
	rec.Run.Entities = res.Model.Len()

	for i, d := range res.Report.Diagnostics {
		rec.Issues = append(rec.Issues, models.Issue{
			Path:       path,
			Seq:        i,
			Severity:   d.Kind.String(),
			Code:       string(d.Code),
			Message:    d.Message,
			Entity:     d.Location.Entity,
			State:      d.Location.State,
			Transition: d.Location.Transition,
		})
	}
	rec.Nodes, rec.Links = GraphOf(res.Model)
	return rec, res
}

// GraphOf flattens m into entity nodes and relationship links. Ref-typed
// attributes become links of type "ref".
func GraphOf(m *ir.Model) ([]models.GraphNode, []models.GraphLink) {
	nodes := []models.GraphNode{}
	links := []models.GraphLink{}
	for _, e := range m.Entities() {
		n := models.GraphNode{ID: e.Name, Stateful: e.Stateful()}
		for _, s := range e.States {
			n.States = append(n.States, s.Name)
		}
		nodes = append(nodes, n)

		for _, r := range e.Relationships {
			links = append(links, models.GraphLink{Source: e.Name, Target: r.Target, Type: string(r.Kind)})
		}
		for _, a := range e.Attributes {
			if target, ok := a.Type.RefTarget(); ok {
				links = append(links, models.GraphLink{Source: e.Name, Target: target, Type: "ref"})
			}
		}
	}
	return nodes, links
}
