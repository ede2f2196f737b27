package rules

import (
	"strings"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/ir"
)

// DuplicateDefinition surfaces the conflicts the graph builder recorded.
type DuplicateDefinition struct{}

func (DuplicateDefinition) Code() diag.Code { return diag.CodeDuplicateDefinition }

func (DuplicateDefinition) Name() string { return "duplicate-definition" }

func (DuplicateDefinition) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, c := range m.Conflicts {
		loc := diag.Location{Entity: c.Entity}
		switch c.Kind {
		case ir.ConflictState:
			loc.State = c.Name
		case ir.ConflictTransition:
			loc.Transition = c.Name
		}
		out = append(out, diag.Errorf(diag.CodeDuplicateDefinition, loc, "%s", c.String()))
	}
	return out, nil
}

// OrphanEntity warns about entities with no relationship in either
// direction. Single-entity models and entities marked standalone are
// exempt.
type OrphanEntity struct{}

func (OrphanEntity) Code() diag.Code { return diag.CodeOrphanEntity }

func (OrphanEntity) Name() string { return "orphan-entity" }

func (OrphanEntity) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	if m.Len() < 2 {
		return nil, nil
	}
	linked := make(map[string]bool)
	for _, e := range m.Entities() {
		for _, r := range e.Relationships {
			linked[e.Name] = true
			linked[r.Target] = true
		}
		for _, a := range e.Attributes {
			if target, ok := a.Type.RefTarget(); ok {
				linked[e.Name] = true
				linked[target] = true
			}
		}
	}
	var out []diag.Diagnostic
	for _, e := range m.Entities() {
		if e.Standalone || linked[e.Name] {
			continue
		}
		out = append(out, diag.Warnf(diag.CodeOrphanEntity, diag.Location{Entity: e.Name},
			"entity %q has no relationships to other entities", e.Name))
	}
	return out, nil
}

// OrphanNode warns about declared permissions no active rule grants and
// declared roles no active rule uses.
type OrphanNode struct{}

func (OrphanNode) Code() diag.Code { return diag.CodeOrphanNode }

func (OrphanNode) Name() string { return "orphan-node" }

func (OrphanNode) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	granted := make(map[string]bool)
	used := make(map[string]bool)
	for _, r := range m.Metadata.Rules {
		if !r.Active {
			continue
		}
		used[r.Role] = true
		for _, p := range r.Permissions {
			granted[p] = true
		}
	}
	var out []diag.Diagnostic
	for _, role := range m.Metadata.Roles {
		if !used[role] {
			out = append(out, diag.Warnf(diag.CodeOrphanNode, diag.Location{},
				"role %q is not used by any active rule", role))
		}
	}
	for _, p := range m.Metadata.Permissions {
		if !granted[p] {
			out = append(out, diag.Warnf(diag.CodeOrphanNode, diag.Location{},
				"permission %q is not granted by any active rule", p))
		}
	}
	return out, nil
}

// DependencyCycle reports every strongly connected component of the
// depends_on/belongs_to subgraph that forms a cycle.
type DependencyCycle struct{}

func (DependencyCycle) Code() diag.Code { return diag.CodeDependencyCycle }

func (DependencyCycle) Name() string { return "dependency-cycle" }

func (DependencyCycle) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, scc := range Cycles(m) {
		path := append(append([]string(nil), scc...), scc[0])
		out = append(out, diag.Warnf(diag.CodeDependencyCycle, diag.Location{Entity: scc[0]},
			"dependency cycle: %s", strings.Join(path, " -> ")))
	}
	return out, nil
}

// TransitionGap warns when a trigger is handled from two or more states
// but missing from another non-terminal state it does not lead to. A
// trigger used from a single source state is never reported.
type TransitionGap struct{}

func (TransitionGap) Code() diag.Code { return diag.CodeTransitionGap }

func (TransitionGap) Name() string { return "transition-gap" }

func (TransitionGap) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, e := range m.Entities() {
		if !e.Stateful() {
			continue
		}
		var triggers []string
		sources := make(map[string][]string)
		targets := make(map[string]map[string]bool)
		for _, t := range e.Transitions {
			if t.Trigger == "" {
				continue
			}
			if _, ok := sources[t.Trigger]; !ok {
				triggers = append(triggers, t.Trigger)
				targets[t.Trigger] = make(map[string]bool)
			}
			targets[t.Trigger][t.To] = true
			for _, f := range t.From {
				if _, defined := e.State(f); defined && !contains(sources[t.Trigger], f) {
					sources[t.Trigger] = append(sources[t.Trigger], f)
				}
			}
			if sources[t.Trigger] == nil {
				sources[t.Trigger] = []string{}
			}
		}
		for _, trig := range triggers {
			from := sources[trig]
			if len(from) < 2 {
				continue
			}
			for _, s := range e.States {
				if s.Terminal || contains(from, s.Name) || targets[trig][s.Name] {
					continue
				}
				out = append(out, diag.Warnf(diag.CodeTransitionGap, diag.Location{Entity: e.Name, State: s.Name},
					"trigger %q is handled in states [%s] but not in %q", trig, strings.Join(from, ", "), s.Name))
			}
		}
	}
	return out, nil
}

// UnclearMarkers surfaces the ambiguity notes authors left on entities.
type UnclearMarkers struct{}

func (UnclearMarkers) Code() diag.Code { return diag.CodeUnclear }

func (UnclearMarkers) Name() string { return "unclear" }

func (UnclearMarkers) Check(m *ir.Model) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, e := range m.Entities() {
		for _, note := range e.Unclear {
			out = append(out, diag.Unclearf(diag.CodeUnclear, diag.Location{Entity: e.Name}, "%s", note))
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
