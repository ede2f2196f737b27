// Package graph builds the IR model from decoded schema documents.
//
// Entities may be split across documents: each section (attributes,
// relationships, states, ...) of a repeated entity is taken from whichever
// fragment declares it. A section declared twice with different contents
// is a conflict; the first declaration wins and the conflict is reported
// through DuplicateDefinitionError. Cross references are left unresolved.
package graph

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/schema"
)

// Build validates docs and assembles them into a model.
//
// A *FieldError means the input was rejected and no model is returned. A
// *DuplicateDefinitionError is returned together with a usable model whose
// Conflicts field lists the same conflicts.
func Build(docs ...*schema.Document) (*ir.Model, error) {
	if issues := validateDocs(docs); len(issues) > 0 {
		return nil, &FieldError{Issues: issues}
	}

	b := &builder{
		defs: make(map[string]*schema.EntityDef),
	}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for i := range doc.Entities {
			b.mergeEntity(doc.Entities[i])
		}
		b.mergeDocument(doc)
	}

	m := ir.NewModel()
	for _, name := range b.order {
		m.AddEntity(b.entity(b.defs[name]))
	}
	m.SystemInvariants = b.sysInvariants
	m.TemporalRules = b.temporal
	m.Metadata = b.meta
	m.Conflicts = b.conflicts

	if len(b.conflicts) > 0 {
		return m, &DuplicateDefinitionError{Conflicts: append([]ir.Conflict(nil), b.conflicts...)}
	}
	return m, nil
}

type builder struct {
	defs          map[string]*schema.EntityDef
	order         []string
	sysInvariants []ir.Invariant
	temporal      []string
	meta          ir.Metadata
	conflicts     []ir.Conflict
}

func (b *builder) conflict(kind ir.ConflictKind, entity, name, detail string) {
	b.conflicts = append(b.conflicts, ir.Conflict{Kind: kind, Entity: entity, Name: name, Detail: detail})
}

// mergeEntity folds a fragment into the first definition of its name.
func (b *builder) mergeEntity(def schema.EntityDef) {
	prev, ok := b.defs[def.Name]
	if !ok {
		d := def
		b.defs[def.Name] = &d
		b.order = append(b.order, def.Name)
		return
	}

	var differ []string
	section := func(name string, dst, src interface{}) {
		dv := reflect.ValueOf(dst).Elem()
		sv := reflect.ValueOf(src)
		switch {
		case sv.Len() == 0:
		case dv.Len() == 0:
			dv.Set(sv)
		case !reflect.DeepEqual(dv.Interface(), sv.Interface()):
			differ = append(differ, name)
		}
	}
	section("attributes", &prev.Attributes, def.Attributes)
	section("relationships", &prev.Relationships, def.Relationships)
	section("states", &prev.States, def.States)
	section("transitions", &prev.Transitions, def.Transitions)
	section("computed", &prev.Computed, def.Computed)
	section("invariants", &prev.Invariants, def.Invariants)
	section("unclear", &prev.Unclear, def.Unclear)
	prev.Standalone = prev.Standalone || def.Standalone

	if len(differ) > 0 {
		b.conflict(ir.ConflictEntity, def.Name, def.Name,
			"conflicting definitions of "+strings.Join(differ, ", "))
	}
}

func (b *builder) mergeDocument(doc *schema.Document) {
	for _, inv := range doc.SystemInvariants {
		v := invariant(inv, ir.ScopeSystem)
		if !containsInvariant(b.sysInvariants, v) {
			b.sysInvariants = append(b.sysInvariants, v)
		}
	}
	b.temporal = appendUnique(b.temporal, doc.TemporalRules...)
	b.meta.Roles = appendUnique(b.meta.Roles, doc.Roles...)
	b.meta.Permissions = appendUnique(b.meta.Permissions, doc.Permissions...)
	for _, r := range doc.Rules {
		rule := ir.AccessRule{
			Name:        r.Name,
			Role:        r.Role,
			Permissions: append([]string(nil), r.Permissions...),
			Active:      r.IsActive(),
		}
		if !containsRule(b.meta.Rules, rule) {
			b.meta.Rules = append(b.meta.Rules, rule)
		}
	}
}

// entity converts a merged definition, dropping exact duplicate states and
// transitions and recording conflicting ones.
func (b *builder) entity(def *schema.EntityDef) *ir.Entity {
	e := &ir.Entity{
		Name:       def.Name,
		Standalone: def.Standalone,
		Unclear:    append([]string(nil), def.Unclear...),
	}

	for _, a := range def.Attributes {
		e.Attributes = append(e.Attributes, ir.Attribute{
			Name:     a.Name,
			Type:     ir.ParseType(a.Type, a.Values),
			Unique:   a.Unique,
			Optional: a.Optional,
			Min:      a.Min,
			Max:      a.Max,
			Default:  a.Default,
		})
	}

	for _, r := range def.Relationships {
		e.Relationships = append(e.Relationships, ir.Relationship{
			Kind:       ir.RelKind(r.Type),
			Target:     r.Target,
			Alias:      r.As,
			Conditions: ir.NewConditions(r.Conditions),
		})
	}

	seenStates := make(map[string]schema.StateDef)
	for _, s := range def.States {
		if prev, ok := seenStates[s.Name]; ok {
			if prev != s {
				b.conflict(ir.ConflictState, def.Name, s.Name, "declared twice with different flags or guard")
			}
			continue
		}
		seenStates[s.Name] = s
		st := ir.State{Name: s.Name, Initial: s.Initial, Terminal: s.Terminal}
		if s.Guard != "" {
			g := ir.NewCondition(s.Guard)
			st.Guard = &g
		}
		e.States = append(e.States, st)
	}

	seenTransitions := make(map[string]schema.TransitionDef)
	for _, t := range def.Transitions {
		key := transitionKey(t)
		if prev, ok := seenTransitions[key]; ok {
			if !reflect.DeepEqual(prev, t) {
				tr := ir.Transition{From: t.From, To: t.To, Trigger: t.Trigger}
				b.conflict(ir.ConflictTransition, def.Name, tr.ID(), "declared twice with different requires or effects")
			}
			continue
		}
		seenTransitions[key] = t
		e.Transitions = append(e.Transitions, ir.Transition{
			From:     append([]string(nil), t.From...),
			To:       t.To,
			Trigger:  t.Trigger,
			Requires: ir.NewConditions(t.Requires),
			Effects:  append([]string(nil), t.Effects...),
		})
	}

	for _, c := range def.Computed {
		comp := ir.Computed{Name: c.Name}
		if c.Formula != "" {
			f := ir.NewCondition(c.Formula)
			comp.Formula = &f
		}
		e.Computed = append(e.Computed, comp)
	}

	for _, inv := range def.Invariants {
		scope := ir.ScopeEntity
		if inv.Scope == string(ir.ScopeSystem) {
			scope = ir.ScopeSystem
		}
		e.Invariants = append(e.Invariants, invariant(inv, scope))
	}
	return e
}

// transitionKey identifies a transition structurally: its source set
// (order-insensitive), target and trigger.
func transitionKey(t schema.TransitionDef) string {
	from := append([]string(nil), t.From...)
	sort.Strings(from)
	return strings.Join(from, ",") + "\x00" + t.To + "\x00" + t.Trigger
}

func invariant(def schema.InvariantDef, scope ir.Scope) ir.Invariant {
	inv := ir.Invariant{Description: def.Description, Scope: scope}
	if def.Formal != "" {
		f := ir.NewCondition(def.Formal)
		inv.Formal = &f
	}
	return inv
}

func containsInvariant(list []ir.Invariant, v ir.Invariant) bool {
	for _, x := range list {
		if reflect.DeepEqual(x, v) {
			return true
		}
	}
	return false
}

func containsRule(list []ir.AccessRule, r ir.AccessRule) bool {
	for _, x := range list {
		if reflect.DeepEqual(x, r) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

// validateDocs checks every definition and returns the invalid fields in
// document order.
func validateDocs(docs []*schema.Document) []FieldIssue {
	var issues []FieldIssue
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		add := func(line int, path string, err error) {
			issues = append(issues, flatten(doc.Source, line, path, err)...)
		}
		for _, e := range doc.Entities {
			prefix := "entities." + e.Name
			if e.Name == "" {
				prefix = "entities"
			}
			add(e.Line, prefix, e.Validate())
			for i, a := range e.Attributes {
				add(e.Line, fmt.Sprintf("%s.attributes[%d]", prefix, i), a.Validate())
			}
			for i, r := range e.Relationships {
				add(e.Line, fmt.Sprintf("%s.relationships[%d]", prefix, i), r.Validate())
			}
			for i, s := range e.States {
				add(e.Line, fmt.Sprintf("%s.states[%d]", prefix, i), s.Validate())
			}
			for i, t := range e.Transitions {
				add(e.Line, fmt.Sprintf("%s.transitions[%d]", prefix, i), t.Validate())
			}
			for i, c := range e.Computed {
				add(e.Line, fmt.Sprintf("%s.computed[%d]", prefix, i), c.Validate())
			}
			for i, inv := range e.Invariants {
				add(e.Line, fmt.Sprintf("%s.invariants[%d]", prefix, i), inv.Validate())
			}
		}
		for i, inv := range doc.SystemInvariants {
			add(0, fmt.Sprintf("system_invariants[%d]", i), inv.Validate())
		}
		for i, r := range doc.Rules {
			add(0, fmt.Sprintf("rules[%d]", i), r.Validate())
		}
		add(0, "roles", validation.Validate(doc.Roles, validation.Each(validation.Required)))
		add(0, "permissions", validation.Validate(doc.Permissions, validation.Each(validation.Required)))
	}
	return issues
}

// flatten turns an ozzo error tree into one issue per field, sorted by key.
func flatten(source string, line int, path string, err error) []FieldIssue {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []FieldIssue{{Source: source, Line: line, Path: path, Message: err.Error()}}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []FieldIssue
	for _, k := range keys {
		sub := path + "." + k
		if _, err := strconv.Atoi(k); err == nil {
			sub = fmt.Sprintf("%s[%s]", path, k)
		}
		out = append(out, flatten(source, line, sub, verrs[k])...)
	}
	return out
}
