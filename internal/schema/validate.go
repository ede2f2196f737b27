package schema

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kukula/lattice/internal/ir"
)

func init() {
	// Report field errors under their YAML keys.
	validation.ErrorTag = "yaml"
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var relKinds = []interface{}{"belongs_to", "has_many", "has_one", "depends_on"}

// Validate checks the entity's own fields. Nested definitions are validated
// by the graph builder so it can report their position.
func (e EntityDef) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Match(identRe).Error("must be an identifier")),
	)
}

// Validate checks the attribute definition.
func (a AttributeDef) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.Values, validation.By(func(interface{}) error {
			t := ir.ParseType(a.Type, a.Values)
			if t.Kind == ir.TypeEnum && len(t.Literals) == 0 {
				return errors.New("enum type requires at least one value")
			}
			return nil
		})),
		validation.Field(&a.Max, validation.By(func(interface{}) error {
			if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
				return errors.New("must not be less than min")
			}
			return nil
		})),
	)
}

// Validate checks the relationship definition.
func (r RelationshipDef) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.In(relKinds...)),
		validation.Field(&r.Target, validation.Required),
		validation.Field(&r.Conditions, validation.Each(validation.Required)),
	)
}

// Validate checks the state definition.
func (s StateDef) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Match(identRe).Error("must be an identifier")),
	)
}

// Validate checks the transition definition.
func (t TransitionDef) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.From, validation.Required, validation.Each(validation.Required)),
		validation.Field(&t.To, validation.Required),
		validation.Field(&t.Requires, validation.Each(validation.Required)),
	)
}

// Validate checks the computed property definition.
func (c ComputedDef) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Match(identRe).Error("must be an identifier")),
	)
}

// Validate checks the invariant definition.
func (i InvariantDef) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Description, validation.Required),
		validation.Field(&i.Scope, validation.In("entity", "system")),
	)
}

// Validate checks the access rule definition.
func (r AccessRuleDef) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Role, validation.Required),
		validation.Field(&r.Permissions, validation.Each(validation.Required)),
	)
}
