// Package engine runs the validation pipeline: build the model, resolve
// references, analyze state machines, run the structural rules and
// aggregate everything into one report.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/graph"
	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/resolve"
	"github.com/kukula/lattice/internal/rules"
	"github.com/kukula/lattice/internal/schema"
	"github.com/kukula/lattice/internal/statemachine"
)

// Result is the outcome of one validation run. Model and Analysis are
// read-only.
type Result struct {
	Model      *ir.Model
	Report     *diag.Report
	Analysis   *statemachine.Analysis
	Unresolved []resolve.Reference
	Faults     []rules.Fault
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the default rule set.
func WithRules(rs ...rules.Rule) Option {
	return func(e *Engine) {
		e.rules = rs
	}
}

// WithDisabled turns off the rules carrying any of codes and drops the
// resolver and state-machine diagnostics with those codes from reports.
func WithDisabled(codes ...diag.Code) Option {
	return func(e *Engine) {
		e.disabled = append(e.disabled, codes...)
	}
}

// WithParallel runs up to n rules concurrently. n <= 1 runs them in order.
func WithParallel(n int) Option {
	return func(e *Engine) {
		e.parallel = n
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// Engine validates models. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	rules    []rules.Rule
	disabled []diag.Code
	parallel int
	log      *slog.Logger
}

// New returns an Engine with the default rules.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules: rules.Default(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = rules.Without(e.rules, e.disabled...)
	return e
}

// Rules returns the enabled rules in registry order.
func (e *Engine) Rules() []rules.Rule {
	return append([]rules.Rule(nil), e.rules...)
}

// Validate builds a model from docs and analyzes it. Field errors abort the
// run; duplicate definitions do not and surface as diagnostics.
func (e *Engine) Validate(docs ...*schema.Document) (*Result, error) {
	m, err := graph.Build(docs...)
	if err != nil {
		var dup *graph.DuplicateDefinitionError
		if !errors.As(err, &dup) {
			return nil, fmt.Errorf("engine: build: %w", err)
		}
		e.log.Debug("duplicate definitions", "count", len(dup.Conflicts))
	}
	return e.Analyze(m), nil
}

// ValidateFiles loads each path and validates them as one model.
func (e *Engine) ValidateFiles(paths ...string) (*Result, error) {
	docs := make([]*schema.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := schema.Load(p)
		if err != nil {
			return nil, fmt.Errorf("engine: load: %w", err)
		}
		docs = append(docs, doc)
	}
	return e.Validate(docs...)
}

func (e *Engine) enabled(ds []diag.Diagnostic) []diag.Diagnostic {
	if len(e.disabled) == 0 {
		return ds
	}
	out := make([]diag.Diagnostic, 0, len(ds))
	for _, d := range ds {
		if !slices.Contains(e.disabled, d.Code) {
			out = append(out, d)
		}
	}
	return out
}

// Analyze runs every analysis over m without modifying it. Running it again
// on Result.Model yields the same report.
func (e *Engine) Analyze(m *ir.Model) *Result {
	res := resolve.Resolve(m)
	sm := statemachine.Analyze(m)
	out := rules.Run(m, e.rules, e.parallel)

	for _, f := range out.Faults {
		e.log.Warn("rule failed", "rule", f.Rule, "code", f.Code, "error", f.Err)
	}

	rep := diag.Aggregate(m.EntityNames(),
		e.enabled(res.Diagnostics), e.enabled(sm.Diagnostics), e.enabled(out.Diagnostics))
	rep.Summary.StatesTotal = sm.StatesTotal()
	rep.Summary.StatesReachable = sm.StatesReachable()

	e.log.Debug("validation finished",
		"entities", m.Len(),
		"errors", rep.Summary.Errors,
		"warnings", rep.Summary.Warnings,
		"unclear", rep.Summary.Unclear,
	)

	return &Result{
		Model:      m,
		Report:     rep,
		Analysis:   sm,
		Unresolved: res.Unresolved,
		Faults:     out.Faults,
	}
}
