// Package resolve checks that every cross reference in a model points at a
// defined name. It never mutates the model.
package resolve

import (
	"fmt"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/ir"
)

// Reference is one name that did not resolve.
type Reference struct {
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field"`
	Token  string `json:"token"`
}

// Result holds the resolver output.
type Result struct {
	Diagnostics []diag.Diagnostic
	Unresolved  []Reference
}

// OK reports whether every reference resolved.
func (r *Result) OK() bool {
	return len(r.Unresolved) == 0
}

type namespace map[string]struct{}

func (n namespace) add(names ...string) {
	for _, s := range names {
		n[s] = struct{}{}
	}
}

func (n namespace) has(s string) bool {
	_, ok := n[s]
	return ok
}

type resolver struct {
	m   *ir.Model
	res *Result
}

// Resolve walks the model in declaration order: per entity attributes,
// relationships, states, transitions, computed properties and invariants;
// then system invariants; then access rules.
func Resolve(m *ir.Model) *Result {
	r := &resolver{m: m, res: &Result{}}

	global := namespace{}
	for _, e := range m.Entities() {
		global.add(e.Name, ir.SnakeCase(e.Name))
		global.add(ir.Relationship{Target: e.Name}.Names()...)
	}

	for _, e := range m.Entities() {
		r.entity(e, global)
	}

	system := namespace{}
	for k := range global {
		system.add(k)
	}
	for _, e := range m.Entities() {
		for _, a := range e.Attributes {
			system.add(a.Name)
			system.add(a.Type.EnumLiterals()...)
		}
		for _, c := range e.Computed {
			system.add(c.Name)
		}
		for _, rel := range e.Relationships {
			system.add(rel.Names()...)
		}
	}
	for i, inv := range m.SystemInvariants {
		if inv.Formal != nil {
			r.condition("", "", fmt.Sprintf("system_invariants[%d].formal", i), *inv.Formal, system)
		}
	}

	roles := namespace{}
	roles.add(m.Metadata.Roles...)
	perms := namespace{}
	perms.add(m.Metadata.Permissions...)
	for i, rule := range m.Metadata.Rules {
		if !roles.has(rule.Role) {
			r.unresolved(diag.Location{}, "", fmt.Sprintf("rules[%d].role", i), rule.Role, "role")
		}
		for _, p := range rule.Permissions {
			if !perms.has(p) {
				r.unresolved(diag.Location{}, "", fmt.Sprintf("rules[%d].permissions", i), p, "permission")
			}
		}
	}
	return r.res
}

func (r *resolver) entity(e *ir.Entity, global namespace) {
	local := namespace{}
	for k := range global {
		local.add(k)
	}
	for _, a := range e.Attributes {
		// Unquoted enum literals compare against the attribute.
		local.add(a.Name)
		local.add(a.Type.EnumLiterals()...)
	}
	for _, c := range e.Computed {
		local.add(c.Name)
	}
	for _, rel := range e.Relationships {
		local.add(rel.Names()...)
	}
	states := namespace{}
	for _, s := range e.States {
		local.add(s.Name)
		states.add(s.Name)
	}
	if e.Stateful() {
		// Implicit current-state attribute.
		local.add("state", "status")
	}

	loc := diag.Location{Entity: e.Name}

	for i, a := range e.Attributes {
		if target, ok := a.Type.RefTarget(); ok && !r.m.HasEntity(target) {
			r.unresolved(loc, e.Name, fmt.Sprintf("attributes[%d].type", i), target, "entity")
		}
	}

	for i, rel := range e.Relationships {
		if !r.m.HasEntity(rel.Target) {
			r.unresolved(loc, e.Name, fmt.Sprintf("relationships[%d].target", i), rel.Target, "entity")
		}
		for j, c := range rel.Conditions {
			r.condition(e.Name, "", fmt.Sprintf("relationships[%d].conditions[%d]", i, j), c, local)
		}
	}

	for i, s := range e.States {
		if s.Guard != nil {
			r.condition(e.Name, s.Name, fmt.Sprintf("states[%d].guard", i), *s.Guard, local)
		}
	}

	for i, t := range e.Transitions {
		tloc := diag.Location{Entity: e.Name, Transition: t.ID()}
		for _, from := range t.From {
			if !states.has(from) {
				l := tloc
				l.State = from
				r.unresolved(l, e.Name, fmt.Sprintf("transitions[%d].from", i), from, "state")
			}
		}
		if !states.has(t.To) {
			l := tloc
			l.State = t.To
			r.unresolved(l, e.Name, fmt.Sprintf("transitions[%d].to", i), t.To, "state")
		}
		for j, c := range t.Requires {
			r.conditionAt(tloc, e.Name, fmt.Sprintf("transitions[%d].requires[%d]", i, j), c, local)
		}
	}

	for i, c := range e.Computed {
		if c.Formula != nil {
			r.condition(e.Name, "", fmt.Sprintf("computed[%d].formula", i), *c.Formula, local)
		}
	}

	for i, inv := range e.Invariants {
		if inv.Formal == nil {
			continue
		}
		ns := local
		if inv.Scope == ir.ScopeSystem {
			ns = global
		}
		r.condition(e.Name, "", fmt.Sprintf("invariants[%d].formal", i), *inv.Formal, ns)
	}
}

func (r *resolver) condition(entity, state, field string, c ir.Condition, ns namespace) {
	r.conditionAt(diag.Location{Entity: entity, State: state}, entity, field, c, ns)
}

func (r *resolver) conditionAt(loc diag.Location, entity, field string, c ir.Condition, ns namespace) {
	for _, tok := range c.Refs {
		if !ns.has(tok) {
			r.unresolved(loc, entity, field, tok, "name")
		}
	}
}

func (r *resolver) unresolved(loc diag.Location, entity, field, token, what string) {
	r.res.Unresolved = append(r.res.Unresolved, Reference{Entity: entity, Field: field, Token: token})
	r.res.Diagnostics = append(r.res.Diagnostics,
		diag.Errorf(diag.CodeReferenceIntegrity, loc, "%s references undefined %s %q", field, what, token))
}
