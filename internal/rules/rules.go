// Package rules holds the structural checks that run over a built model.
//
// Each rule is pure and independent. Run executes a rule list, optionally
// in parallel, and returns the diagnostics in rule order regardless of
// execution order. A rule that fails or panics is reported as an Unclear
// diagnostic carrying the rule's code; the other rules still run.
package rules

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/ir"
)

// Rule is one structural check.
type Rule interface {
	Code() diag.Code
	Name() string
	Check(m *ir.Model) ([]diag.Diagnostic, error)
}

// Default returns the built-in rules in registry order.
func Default() []Rule {
	return []Rule{
		DuplicateDefinition{},
		OrphanEntity{},
		OrphanNode{},
		DependencyCycle{},
		TransitionGap{},
		UnclearMarkers{},
	}
}

// Without returns rs minus the rules whose code is in disabled.
func Without(rs []Rule, disabled ...diag.Code) []Rule {
	if len(disabled) == 0 {
		return rs
	}
	skip := make(map[diag.Code]bool, len(disabled))
	for _, c := range disabled {
		skip[c] = true
	}
	out := make([]Rule, 0, len(rs))
	for _, r := range rs {
		if !skip[r.Code()] {
			out = append(out, r)
		}
	}
	return out
}

// Func adapts a function to the Rule interface.
func Func(code diag.Code, name string, fn func(*ir.Model) ([]diag.Diagnostic, error)) Rule {
	return funcRule{code: code, name: name, fn: fn}
}

type funcRule struct {
	code diag.Code
	name string
	fn   func(*ir.Model) ([]diag.Diagnostic, error)
}

func (f funcRule) Code() diag.Code { return f.code }

func (f funcRule) Name() string { return f.name }

func (f funcRule) Check(m *ir.Model) ([]diag.Diagnostic, error) { return f.fn(m) }

// Fault records a rule that could not complete.
type Fault struct {
	Rule string
	Code diag.Code
	Err  error
}

// Outcome is the result of running a rule list.
type Outcome struct {
	Diagnostics []diag.Diagnostic
	Faults      []Fault
}

// Run executes rs against m. With parallel > 1 up to that many rules run
// concurrently.
func Run(m *ir.Model, rs []Rule, parallel int) *Outcome {
	results := make([][]diag.Diagnostic, len(rs))
	errs := make([]error, len(rs))

	if parallel > 1 {
		var g errgroup.Group
		g.SetLimit(parallel)
		for i, r := range rs {
			g.Go(func() error {
				results[i], errs[i] = check(r, m)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, r := range rs {
			results[i], errs[i] = check(r, m)
		}
	}

	out := &Outcome{}
	for i, r := range rs {
		out.Diagnostics = append(out.Diagnostics, results[i]...)
		if errs[i] != nil {
			out.Faults = append(out.Faults, Fault{Rule: r.Name(), Code: r.Code(), Err: errs[i]})
			out.Diagnostics = append(out.Diagnostics,
				diag.Unclearf(r.Code(), diag.Location{}, "rule %s could not complete: %v", r.Name(), errs[i]))
		}
	}
	return out
}

func check(r Rule, m *ir.Model) (ds []diag.Diagnostic, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Check(m)
}
