// Package ir defines the intermediate representation of a Lattice model.
//
// Cross-entity references (relationship targets, transition endpoints,
// condition tokens) are held as plain name strings and resolved by a
// separate pass, so the IR can be built in any order and is trivially
// serializable. A Model is immutable once the graph builder returns it.
package ir

import (
	"fmt"
	"strings"
)

// RelKind is the kind of a relationship edge between two entities.
type RelKind string

const (
	BelongsTo RelKind = "belongs_to"
	HasMany   RelKind = "has_many"
	HasOne    RelKind = "has_one"
	DependsOn RelKind = "depends_on"
)

// RelKinds lists the valid relationship kinds.
func RelKinds() []RelKind {
	return []RelKind{BelongsTo, HasMany, HasOne, DependsOn}
}

// Scope tells whether an invariant belongs to an entity or to the system.
type Scope string

const (
	ScopeEntity Scope = "entity"
	ScopeSystem Scope = "system"
)

// Attribute is a typed field of an entity.
type Attribute struct {
	Name     string   `json:"name"`
	Type     Type     `json:"type"`
	Unique   bool     `json:"unique,omitempty"`
	Optional bool     `json:"optional,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Default  *string  `json:"default,omitempty"`
}

// Relationship is a typed edge to another entity. Target is unresolved.
type Relationship struct {
	Kind       RelKind     `json:"kind"`
	Target     string      `json:"target"`
	Alias      string      `json:"alias,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Names returns the identifiers a condition may use to refer to this
// relationship: the alias if set, otherwise the snake_case target in both
// singular and plural form.
func (r Relationship) Names() []string {
	if r.Alias != "" {
		return []string{r.Alias}
	}
	s := SnakeCase(r.Target)
	return []string{s, plural(s)}
}

// State is a node of an entity's state machine.
type State struct {
	Name     string     `json:"name"`
	Initial  bool       `json:"initial,omitempty"`
	Terminal bool       `json:"terminal,omitempty"`
	Guard    *Condition `json:"guard,omitempty"`
}

// Transition moves an entity from any of From to To. A transition with N
// source states contributes N edges to the state graph.
type Transition struct {
	From     []string    `json:"from"`
	To       string      `json:"to"`
	Trigger  string      `json:"trigger,omitempty"`
	Requires []Condition `json:"requires,omitempty"`
	Effects  []string    `json:"effects,omitempty"`
}

// ID is a stable human-readable identifier, e.g. "[draft,submitted]->cancelled (cancel)".
func (t Transition) ID() string {
	id := "[" + strings.Join(t.From, ",") + "]->" + t.To
	if t.Trigger != "" {
		id += " (" + t.Trigger + ")"
	}
	return id
}

// Computed is a derived property. Its name is usable in conditions like an
// attribute; the formula is only scanned for references.
type Computed struct {
	Name    string     `json:"name"`
	Formula *Condition `json:"formula,omitempty"`
}

// Invariant is a constraint that must always hold.
type Invariant struct {
	Description string     `json:"description"`
	Formal      *Condition `json:"formal,omitempty"`
	Scope       Scope      `json:"scope"`
}

// Entity is a named node of the model.
type Entity struct {
	Name          string         `json:"name"`
	Index         int            `json:"index"`
	Standalone    bool           `json:"standalone,omitempty"`
	Attributes    []Attribute    `json:"attributes,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	States        []State        `json:"states,omitempty"`
	Transitions   []Transition   `json:"transitions,omitempty"`
	Computed      []Computed     `json:"computed,omitempty"`
	Invariants    []Invariant    `json:"invariants,omitempty"`
	Unclear       []string       `json:"unclear,omitempty"`
}

// Stateful reports whether the entity declares a state machine.
func (e *Entity) Stateful() bool {
	return len(e.States) > 0
}

// State returns the state with the given name.
func (e *Entity) State(name string) (*State, bool) {
	for i := range e.States {
		if e.States[i].Name == name {
			return &e.States[i], true
		}
	}
	return nil, false
}

// Attribute returns the attribute with the given name.
func (e *Entity) Attribute(name string) (*Attribute, bool) {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			return &e.Attributes[i], true
		}
	}
	return nil, false
}

// InitialStates returns the names of all states flagged initial.
func (e *Entity) InitialStates() []string {
	var out []string
	for _, s := range e.States {
		if s.Initial {
			out = append(out, s.Name)
		}
	}
	return out
}

// AccessRule grants permissions to a role.
type AccessRule struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	Active      bool     `json:"active"`
}

// Metadata holds declared roles, permissions and the rules tying them together.
type Metadata struct {
	Roles       []string     `json:"roles,omitempty"`
	Permissions []string     `json:"permissions,omitempty"`
	Rules       []AccessRule `json:"rules,omitempty"`
}

// ConflictKind names the element a duplicate definition conflicts on.
type ConflictKind string

const (
	ConflictEntity     ConflictKind = "entity"
	ConflictState      ConflictKind = "state"
	ConflictTransition ConflictKind = "transition"
)

// Conflict records two definitions of the same element with different
// contents. The first definition is the one kept in the model.
type Conflict struct {
	Kind   ConflictKind `json:"kind"`
	Entity string       `json:"entity"`
	Name   string       `json:"name"`
	Detail string       `json:"detail"`
}

func (c Conflict) String() string {
	if c.Kind == ConflictEntity {
		return fmt.Sprintf("entity %q: %s", c.Entity, c.Detail)
	}
	return fmt.Sprintf("%s %q of entity %q: %s", c.Kind, c.Name, c.Entity, c.Detail)
}

// Model is the root container of the IR.
type Model struct {
	entities         map[string]*Entity
	order            []string
	SystemInvariants []Invariant `json:"system_invariants,omitempty"`
	TemporalRules    []string    `json:"temporal_rules,omitempty"`
	Metadata         Metadata    `json:"metadata"`
	Conflicts        []Conflict  `json:"conflicts,omitempty"`
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{entities: make(map[string]*Entity)}
}

// AddEntity appends e in declaration order. It returns false and leaves the
// model unchanged if an entity of that name already exists.
func (m *Model) AddEntity(e *Entity) bool {
	if _, ok := m.entities[e.Name]; ok {
		return false
	}
	e.Index = len(m.order)
	m.entities[e.Name] = e
	m.order = append(m.order, e.Name)
	return true
}

// Entity looks up an entity by name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// HasEntity reports whether name is a defined entity.
func (m *Model) HasEntity(name string) bool {
	_, ok := m.entities[name]
	return ok
}

// Entities returns all entities in declaration order.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.entities[name])
	}
	return out
}

// EntityNames returns entity names in declaration order.
func (m *Model) EntityNames() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of entities.
func (m *Model) Len() int {
	return len(m.order)
}

// SnakeCase converts CamelCase or kebab-case names to snake_case.
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && s[i-1] != '_' && s[i-1] != '-' && s[i-1] != ' ' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func plural(s string) string {
	switch {
	case s == "":
		return s
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}
