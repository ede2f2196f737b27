// Package cases derives test-case specifications from a validated model:
// positive transitions, blocked two-hop skips, happy paths and invariant
// checks. It produces data only; rendering test files is left to callers.
package cases

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/statemachine"
)

// Kind classifies a derived case.
type Kind string

const (
	KindPositiveTransition Kind = "positive_transition"
	KindNegativeTransition Kind = "negative_transition"
	KindHappyPath          Kind = "happy_path"
	KindEntityInvariant    Kind = "entity_invariant"
	KindSystemInvariant    Kind = "system_invariant"
)

// SystemSuite is the suite name used for system invariants.
const SystemSuite = "system"

// Case is one derived test case.
type Case struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Entity      string   `json:"entity"`
	Description string   `json:"description"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Trigger     string   `json:"trigger,omitempty"`
	Guards      []string `json:"guards,omitempty"`
	Effects     []string `json:"effects,omitempty"`
	Path        []string `json:"path,omitempty"`
	Formal      string   `json:"formal,omitempty"`
}

// Suite groups the cases of one entity.
type Suite struct {
	Entity string `json:"entity"`
	Cases  []Case `json:"cases"`
}

// Set is the full derivation result.
type Set struct {
	Suites []Suite `json:"suites"`
}

// Total counts cases across all suites.
func (s *Set) Total() int {
	n := 0
	for _, suite := range s.Suites {
		n += len(suite.Cases)
	}
	return n
}

// Derive builds the case set for m using the machines in a. Entities
// without cases get no suite.
func Derive(m *ir.Model, a *statemachine.Analysis) *Set {
	set := &Set{Suites: []Suite{}}
	for _, e := range m.Entities() {
		names := make(map[string]int)
		var cs []Case
		if mach, ok := a.Machine(e.Name); ok {
			cs = append(cs, positive(e, mach, names)...)
			cs = append(cs, negative(e, mach, names)...)
			cs = append(cs, happyPaths(e, mach, names)...)
		}
		cs = append(cs, invariants(e.Name, KindEntityInvariant, "test_"+slug(e.Name)+"_invariant_", e.Invariants, names)...)
		if len(cs) > 0 {
			set.Suites = append(set.Suites, Suite{Entity: e.Name, Cases: cs})
		}
	}
	if len(m.SystemInvariants) > 0 {
		names := make(map[string]int)
		set.Suites = append(set.Suites, Suite{
			Entity: SystemSuite,
			Cases:  invariants(SystemSuite, KindSystemInvariant, "test_system_invariant_", m.SystemInvariants, names),
		})
	}
	return set
}

func positive(e *ir.Entity, mach *statemachine.Machine, names map[string]int) []Case {
	var out []Case
	for _, s := range mach.States {
		for _, edge := range mach.Outgoing(s) {
			t := e.Transitions[edge.Transition]
			desc := fmt.Sprintf("%s transitions from %s to %s", e.Name, edge.From, edge.To)
			if edge.Trigger != "" {
				desc += " on " + edge.Trigger
			}
			out = append(out, Case{
				Name:        unique(names, fmt.Sprintf("test_%s_%s_to_%s", slug(e.Name), slug(edge.From), slug(edge.To))),
				Kind:        KindPositiveTransition,
				Entity:      e.Name,
				Description: desc,
				From:        edge.From,
				To:          edge.To,
				Trigger:     edge.Trigger,
				Guards:      exprs(t.Requires),
				Effects:     append([]string(nil), t.Effects...),
			})
		}
	}
	return out
}

// negative emits a case for every state two hops away from s that has no
// direct edge from s.
func negative(e *ir.Entity, mach *statemachine.Machine, names map[string]int) []Case {
	if mach.Initial == "" {
		return nil
	}
	var out []Case
	for _, s := range mach.States {
		oneHop := make(map[string]bool)
		for _, edge := range mach.Outgoing(s) {
			oneHop[edge.To] = true
		}
		twoHop := make(map[string]bool)
		for next := range oneHop {
			for _, edge := range mach.Outgoing(next) {
				twoHop[edge.To] = true
			}
		}
		for _, target := range mach.States {
			if !twoHop[target] || oneHop[target] || target == s {
				continue
			}
			out = append(out, Case{
				Name:        unique(names, fmt.Sprintf("test_%s_cannot_skip_%s_to_%s", slug(e.Name), slug(s), slug(target))),
				Kind:        KindNegativeTransition,
				Entity:      e.Name,
				Description: fmt.Sprintf("%s cannot transition directly from %s to %s", e.Name, s, target),
				From:        s,
				To:          target,
			})
		}
	}
	return out
}

func happyPaths(e *ir.Entity, mach *statemachine.Machine, names map[string]int) []Case {
	var paths [][]string
	for _, p := range HappyPaths(mach) {
		if len(p) >= 2 {
			paths = append(paths, p)
		}
	}
	out := make([]Case, 0, len(paths))
	for _, p := range paths {
		last := p[len(p)-1]
		out = append(out, Case{
			Name:        unique(names, fmt.Sprintf("test_%s_lifecycle_to_%s", slug(e.Name), slug(last))),
			Kind:        KindHappyPath,
			Entity:      e.Name,
			Description: "Test path: " + strings.Join(p, " → "),
			From:        p[0],
			To:          last,
			Path:        p,
		})
	}
	return out
}

// HappyPaths returns the shortest path from the initial state to each
// reachable terminal state, ordered by length then terminal name.
func HappyPaths(mach *statemachine.Machine) [][]string {
	if mach.Initial == "" {
		return nil
	}
	var paths [][]string
	for _, term := range mach.Terminal {
		if p := shortestPath(mach, mach.Initial, term); p != nil {
			paths = append(paths, p)
		}
	}
	sort.SliceStable(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i][len(paths[i])-1] < paths[j][len(paths[j])-1]
	})
	return paths
}

func shortestPath(mach *statemachine.Machine, from, to string) []string {
	if from == to {
		return []string{from}
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range mach.Outgoing(cur) {
			if _, seen := prev[edge.To]; seen {
				continue
			}
			prev[edge.To] = cur
			if edge.To == to {
				var path []string
				for s := to; s != ""; s = prev[s] {
					path = append([]string{s}, path...)
				}
				return path
			}
			queue = append(queue, edge.To)
		}
	}
	return nil
}

func invariants(entity string, kind Kind, prefix string, invs []ir.Invariant, names map[string]int) []Case {
	var out []Case
	for _, inv := range invs {
		c := Case{
			Name:        unique(names, prefix+slug(truncate(inv.Description, 40))),
			Kind:        kind,
			Entity:      entity,
			Description: inv.Description,
		}
		if inv.Formal != nil {
			c.Formal = inv.Formal.Expr
		}
		out = append(out, c)
	}
	return out
}

func exprs(cs []ir.Condition) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Expr
	}
	return out
}

// unique suffixes name with _2, _3, ... on repeats within one suite.
func unique(names map[string]int, name string) string {
	names[name]++
	if n := names[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

var nonWord = regexp.MustCompile(`[^\w\s-]`)

func slug(s string) string {
	s = nonWord.ReplaceAllString(s, "")
	s = ir.SnakeCase(strings.TrimSpace(s))
	return strings.ToLower(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
