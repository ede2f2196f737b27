// Package schema decodes Lattice model documents from YAML into raw entity
// definitions, normalizing the shorthand forms authors use:
//
//	states: [pending, done]           → list of {name}
//	attributes: [title]               → {name: title, type: string}
//	invariants: ["text"]              → {description: text}
//	relationships: [{has_many: Post}] → {type: has_many, target: Post}
//	belongs_to: User                  → entity-level relationship shorthand
//	from: draft                       → from: [draft]
//
// Definitions are kept in document order, including repeated entity keys,
// so the graph builder can detect duplicate definitions itself.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList decodes either a scalar or a sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = StringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", n.Line)
	}
}

// Document is one decoded model file.
type Document struct {
	Source           string          `yaml:"-"`
	Entities         []EntityDef     `yaml:"-"`
	SystemInvariants []InvariantDef  `yaml:"system_invariants"`
	TemporalRules    []string        `yaml:"temporal_rules"`
	Roles            []string        `yaml:"roles"`
	Permissions      []string        `yaml:"permissions"`
	Rules            []AccessRuleDef `yaml:"rules"`
}

// UnmarshalYAML implements yaml.Unmarshaler. The entities mapping is walked
// by hand to keep declaration order and repeated keys.
func (d *Document) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping at root", n.Line)
	}
	type plain Document
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*d = Document(p)

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.Value != "entities" {
			continue
		}
		if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
			break
		}
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: entities must be a mapping of name to definition", val.Line)
		}
		for j := 0; j+1 < len(val.Content); j += 2 {
			var def EntityDef
			if err := val.Content[j+1].Decode(&def); err != nil {
				return fmt.Errorf("entity %q: %w", val.Content[j].Value, err)
			}
			def.Name = val.Content[j].Value
			def.Line = val.Content[j].Line
			d.Entities = append(d.Entities, def)
		}
	}

	for i := range d.SystemInvariants {
		d.SystemInvariants[i].Scope = "system"
	}
	return nil
}

// EntityDef is the raw definition of one entity.
type EntityDef struct {
	Name          string            `yaml:"name"`
	Line          int               `yaml:"-"`
	Standalone    bool              `yaml:"standalone"`
	Attributes    []AttributeDef    `yaml:"attributes"`
	Relationships []RelationshipDef `yaml:"relationships"`
	States        []StateDef        `yaml:"states"`
	Transitions   []TransitionDef   `yaml:"transitions"`
	Computed      []ComputedDef     `yaml:"computed"`
	Invariants    []InvariantDef    `yaml:"invariants"`
	Unclear       []string          `yaml:"unclear"`
}

// UnmarshalYAML implements yaml.Unmarshaler and folds entity-level
// relationship shorthand into Relationships.
func (e *EntityDef) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Standalone    bool              `yaml:"standalone"`
		Attributes    []AttributeDef    `yaml:"attributes"`
		Relationships []RelationshipDef `yaml:"relationships"`
		States        []StateDef        `yaml:"states"`
		Transitions   []TransitionDef   `yaml:"transitions"`
		Computed      []ComputedDef     `yaml:"computed"`
		Invariants    []InvariantDef    `yaml:"invariants"`
		Unclear       []string          `yaml:"unclear"`
		BelongsTo     StringList        `yaml:"belongs_to"`
		HasMany       StringList        `yaml:"has_many"`
		HasOne        StringList        `yaml:"has_one"`
		DependsOn     StringList        `yaml:"depends_on"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*e = EntityDef{
		Standalone:    raw.Standalone,
		Attributes:    raw.Attributes,
		Relationships: raw.Relationships,
		States:        raw.States,
		Transitions:   raw.Transitions,
		Computed:      raw.Computed,
		Invariants:    raw.Invariants,
		Unclear:       raw.Unclear,
	}
	for _, sh := range []struct {
		kind    string
		targets StringList
	}{
		{"belongs_to", raw.BelongsTo},
		{"has_many", raw.HasMany},
		{"has_one", raw.HasOne},
		{"depends_on", raw.DependsOn},
	} {
		for _, target := range sh.targets {
			e.Relationships = append(e.Relationships, RelationshipDef{Type: sh.kind, Target: target})
		}
	}
	return nil
}

// AttributeDef is a raw attribute.
type AttributeDef struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Values      []string `yaml:"values"`
	Unique      bool     `yaml:"unique"`
	Optional    bool     `yaml:"optional"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Default     *string  `yaml:"default"`
	Description string   `yaml:"description"`
}

// UnmarshalYAML implements yaml.Unmarshaler; a bare scalar is a string attribute.
func (a *AttributeDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*a = AttributeDef{Name: n.Value, Type: "string"}
		return nil
	}
	var raw struct {
		Name        string     `yaml:"name"`
		Type        string     `yaml:"type"`
		Values      []string   `yaml:"values"`
		Unique      bool       `yaml:"unique"`
		Optional    bool       `yaml:"optional"`
		Min         *float64   `yaml:"min"`
		Max         *float64   `yaml:"max"`
		Default     *yaml.Node `yaml:"default"`
		Description string     `yaml:"description"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*a = AttributeDef{
		Name:        raw.Name,
		Type:        raw.Type,
		Values:      raw.Values,
		Unique:      raw.Unique,
		Optional:    raw.Optional,
		Min:         raw.Min,
		Max:         raw.Max,
		Description: raw.Description,
	}
	if raw.Default != nil && raw.Default.Kind == yaml.ScalarNode {
		v := raw.Default.Value
		a.Default = &v
	}
	return nil
}

// RelationshipDef is a raw relationship.
type RelationshipDef struct {
	Type       string     `yaml:"type"`
	Target     string     `yaml:"target"`
	As         string     `yaml:"as"`
	Conditions StringList `yaml:"conditions"`
}

// UnmarshalYAML implements yaml.Unmarshaler and accepts {has_many: Post}.
func (r *RelationshipDef) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Type       string     `yaml:"type"`
		Target     string     `yaml:"target"`
		As         string     `yaml:"as"`
		Conditions StringList `yaml:"conditions"`
		BelongsTo  string     `yaml:"belongs_to"`
		HasMany    string     `yaml:"has_many"`
		HasOne     string     `yaml:"has_one"`
		DependsOn  string     `yaml:"depends_on"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*r = RelationshipDef{Type: raw.Type, Target: raw.Target, As: raw.As, Conditions: raw.Conditions}
	if r.Type != "" {
		return nil
	}
	switch {
	case raw.BelongsTo != "":
		r.Type, r.Target = "belongs_to", raw.BelongsTo
	case raw.HasMany != "":
		r.Type, r.Target = "has_many", raw.HasMany
	case raw.HasOne != "":
		r.Type, r.Target = "has_one", raw.HasOne
	case raw.DependsOn != "":
		r.Type, r.Target = "depends_on", raw.DependsOn
	}
	return nil
}

// StateDef is a raw state.
type StateDef struct {
	Name     string `yaml:"name"`
	Initial  bool   `yaml:"initial"`
	Terminal bool   `yaml:"terminal"`
	Guard    string `yaml:"guard"`
}

// UnmarshalYAML implements yaml.Unmarshaler; a bare scalar is a state name.
func (s *StateDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*s = StateDef{Name: n.Value}
		return nil
	}
	type plain StateDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = StateDef(p)
	return nil
}

// TransitionDef is a raw transition.
type TransitionDef struct {
	From     StringList `yaml:"from"`
	To       string     `yaml:"to"`
	Trigger  string     `yaml:"trigger"`
	Requires StringList `yaml:"requires"`
	Effects  StringList `yaml:"effects"`
}

// ComputedDef is a derived property.
type ComputedDef struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
}

// UnmarshalYAML implements yaml.Unmarshaler; a bare scalar is a name.
func (c *ComputedDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*c = ComputedDef{Name: n.Value}
		return nil
	}
	type plain ComputedDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = ComputedDef(p)
	return nil
}

// InvariantDef is a raw invariant.
type InvariantDef struct {
	Description string `yaml:"description"`
	Formal      string `yaml:"formal"`
	Scope       string `yaml:"scope"`
}

// UnmarshalYAML implements yaml.Unmarshaler; a bare scalar is a description.
func (i *InvariantDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*i = InvariantDef{Description: n.Value}
		return nil
	}
	type plain InvariantDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*i = InvariantDef(p)
	return nil
}

// AccessRuleDef grants permissions to a role. Active defaults to true.
type AccessRuleDef struct {
	Name        string     `yaml:"name"`
	Role        string     `yaml:"role"`
	Permissions StringList `yaml:"permissions"`
	Active      *bool      `yaml:"active"`
}

// IsActive reports whether the rule is in force.
func (r AccessRuleDef) IsActive() bool {
	return r.Active == nil || *r.Active
}
