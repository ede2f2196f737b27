package ir

import (
	"encoding/json"
	"strings"
	"unicode"
)

// TypeKind tags the shape of an attribute type.
type TypeKind string

const (
	TypePrimitive TypeKind = "primitive"
	TypeEnum      TypeKind = "enum"
	TypeRef       TypeKind = "ref"
	TypeList      TypeKind = "list"
)

// Type is a declared attribute type. Name is the primitive name for
// primitives and the (unresolved) target entity for refs.
type Type struct {
	Kind     TypeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Literals []string `json:"literals,omitempty"`
	Elem     *Type    `json:"elem,omitempty"`
}

func (t Type) String() string {
	switch t.Kind {
	case TypeEnum:
		return "enum[" + strings.Join(t.Literals, ", ") + "]"
	case TypeRef:
		return "ref<" + t.Name + ">"
	case TypeList:
		if t.Elem == nil {
			return "list<?>"
		}
		return "list<" + t.Elem.String() + ">"
	default:
		return t.Name
	}
}

// RefTarget returns the entity a ref type (or a list of refs, at any depth)
// points at.
func (t Type) RefTarget() (string, bool) {
	switch t.Kind {
	case TypeRef:
		return t.Name, true
	case TypeList:
		if t.Elem != nil {
			return t.Elem.RefTarget()
		}
	}
	return "", false
}

// EnumLiterals returns the literals of an enum type, or of the enum
// element of a list.
func (t Type) EnumLiterals() []string {
	switch t.Kind {
	case TypeEnum:
		return t.Literals
	case TypeList:
		if t.Elem != nil {
			return t.Elem.EnumLiterals()
		}
	}
	return nil
}

// ParseType parses a declared type tag. values supplies enum literals
// declared separately from the tag (type: enum, values: [...]).
//
// Accepted forms: list<T>, [T], ref<Entity>, enum[a, b], enum(a, b), enum,
// a capitalized bare name (entity reference) or a lowercase primitive name.
// An empty tag defaults to string.
func ParseType(raw string, values []string) Type {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return Type{Kind: TypePrimitive, Name: "string"}
	case hasWrapper(s, "list<", ">"):
		elem := ParseType(s[len("list<"):len(s)-1], nil)
		return Type{Kind: TypeList, Elem: &elem}
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		elem := ParseType(s[1:len(s)-1], nil)
		return Type{Kind: TypeList, Elem: &elem}
	case hasWrapper(s, "ref<", ">"):
		return Type{Kind: TypeRef, Name: strings.TrimSpace(s[len("ref<") : len(s)-1])}
	case hasWrapper(s, "enum[", "]"), hasWrapper(s, "enum(", ")"):
		return Type{Kind: TypeEnum, Literals: splitLiterals(s[len("enum[") : len(s)-1])}
	case strings.EqualFold(s, "enum"):
		return Type{Kind: TypeEnum, Literals: append([]string(nil), values...)}
	case unicode.IsUpper(rune(s[0])):
		return Type{Kind: TypeRef, Name: s}
	default:
		return Type{Kind: TypePrimitive, Name: s}
	}
}

func hasWrapper(s, prefix, suffix string) bool {
	return len(s) > len(prefix)+len(suffix)-1 &&
		strings.HasPrefix(strings.ToLower(s), prefix) && strings.HasSuffix(s, suffix)
}

func splitLiterals(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type modelJSON struct {
	Entities         []*Entity   `json:"entities"`
	SystemInvariants []Invariant `json:"system_invariants,omitempty"`
	TemporalRules    []string    `json:"temporal_rules,omitempty"`
	Metadata         Metadata    `json:"metadata"`
	Conflicts        []Conflict  `json:"conflicts,omitempty"`
}

// MarshalJSON encodes the model with entities as an ordered list.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{
		Entities:         m.Entities(),
		SystemInvariants: m.SystemInvariants,
		TemporalRules:    m.TemporalRules,
		Metadata:         m.Metadata,
		Conflicts:        m.Conflicts,
	})
}
