// Package diag defines the diagnostic value type produced by every analyzer
// and the aggregator that turns analyzer output into one ordered report.
package diag

import (
	"fmt"
	"strings"
)

// Kind is the severity of a diagnostic. The set is closed: Error, Warning
// and Unclear are the only values, and new categories are new Codes.
type Kind int

const (
	KindError Kind = iota
	KindWarning
	KindUnclear
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindUnclear:
		return "unclear"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a lowercase kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "error":
		*k = KindError
	case "warning":
		*k = KindWarning
	case "unclear":
		*k = KindUnclear
	default:
		return fmt.Errorf("diag: unknown kind %q", string(b))
	}
	return nil
}

// Code is a stable category identifier such as UNREACHABLE_STATE.
type Code string

const (
	CodeReferenceIntegrity    Code = "REFERENCE_INTEGRITY"
	CodeNoInitialState        Code = "NO_INITIAL_STATE"
	CodeMultipleInitialStates Code = "MULTIPLE_INITIAL_STATES"
	CodeUnreachableState      Code = "UNREACHABLE_STATE"
	CodeDeadEndState          Code = "DEAD_END_STATE"
	CodeNoInboundTransition   Code = "NO_INBOUND_TRANSITION"
	CodeOrphanEntity          Code = "ORPHAN_ENTITY"
	CodeOrphanNode            Code = "ORPHAN_NODE"
	CodeDependencyCycle       Code = "DEPENDENCY_CYCLE"
	CodeTransitionGap         Code = "TRANSITION_GAP"
	CodeDuplicateDefinition   Code = "DUPLICATE_DEFINITION"
	CodeUnclear               Code = "UNCLEAR"
)

// KnownCodes lists every code the engine can emit, in a stable order.
func KnownCodes() []Code {
	return []Code{
		CodeReferenceIntegrity,
		CodeNoInitialState,
		CodeMultipleInitialStates,
		CodeUnreachableState,
		CodeDeadEndState,
		CodeNoInboundTransition,
		CodeOrphanEntity,
		CodeOrphanNode,
		CodeDependencyCycle,
		CodeTransitionGap,
		CodeDuplicateDefinition,
		CodeUnclear,
	}
}

// Location points at the model element a diagnostic is about. An empty
// Entity means the diagnostic concerns the model as a whole.
type Location struct {
	Entity     string `json:"entity,omitempty"`
	State      string `json:"state,omitempty"`
	Transition string `json:"transition,omitempty"`
}

func (l Location) String() string {
	if l.Entity == "" {
		return "system"
	}
	s := l.Entity
	if l.State != "" {
		s += "." + l.State
	}
	if l.Transition != "" {
		s += " " + l.Transition
	}
	return s
}

// Diagnostic is an immutable finding. Analyzers create them through the
// Errorf/Warnf/Unclearf constructors and never modify them afterwards.
type Diagnostic struct {
	Kind     Kind     `json:"kind"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", strings.ToUpper(d.Kind.String()), d.Code, d.Location, d.Message)
}

// Errorf builds an Error diagnostic.
func Errorf(code Code, loc Location, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: KindError, Code: code, Location: loc, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a Warning diagnostic.
func Warnf(code Code, loc Location, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: KindWarning, Code: code, Location: loc, Message: fmt.Sprintf(format, args...)}
}

// Unclearf builds an Unclear diagnostic.
func Unclearf(code Code, loc Location, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: KindUnclear, Code: code, Location: loc, Message: fmt.Sprintf(format, args...)}
}
