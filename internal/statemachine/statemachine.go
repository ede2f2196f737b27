// Package statemachine computes reachability and coverage for every
// stateful entity of a model.
package statemachine

import (
	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/ir"
)

// Edge is one (source state, transition) pair. A transition listing N
// source states yields N edges.
type Edge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Trigger    string `json:"trigger,omitempty"`
	Transition int    `json:"transition"`
}

// Machine is the analyzed state graph of one entity.
type Machine struct {
	Entity string `json:"entity"`
	// States in declaration order.
	States []string `json:"states"`
	// Initial is set only when exactly one state is flagged initial.
	Initial string `json:"initial,omitempty"`
	// Edges in declaration order. Edges with an undefined endpoint are
	// excluded.
	Edges []Edge `json:"edges"`
	// Reachable states in declaration order. Empty without a unique initial.
	Reachable []string       `json:"reachable"`
	Terminal  []string       `json:"terminal"`
	Inbound   map[string]int `json:"inbound"`
	Outbound  map[string]int `json:"outbound"`

	reachable map[string]bool
	out       map[string][]Edge
}

// IsReachable reports whether state was visited from the initial state.
func (m *Machine) IsReachable(state string) bool {
	return m.reachable[state]
}

// Outgoing returns the edges leaving state in declaration order.
func (m *Machine) Outgoing(state string) []Edge {
	return m.out[state]
}

// IsTerminal reports whether state is flagged terminal.
func (m *Machine) IsTerminal(state string) bool {
	for _, s := range m.Terminal {
		if s == state {
			return true
		}
	}
	return false
}

// Coverage returns the number of states entered by at least one edge and
// the total state count. An initial state nothing transitions back into is
// not covered.
func (m *Machine) Coverage() (covered, total int) {
	for _, s := range m.States {
		if m.Inbound[s] > 0 {
			covered++
		}
	}
	return covered, len(m.States)
}

// Analysis holds the machines of all stateful entities and the
// diagnostics found while building them.
type Analysis struct {
	Diagnostics []diag.Diagnostic

	machines []*Machine
	byEntity map[string]*Machine
}

// Machine returns the machine of entity.
func (a *Analysis) Machine(entity string) (*Machine, bool) {
	m, ok := a.byEntity[entity]
	return m, ok
}

// Machines returns all machines in entity declaration order.
func (a *Analysis) Machines() []*Machine {
	return a.machines
}

// StatesTotal counts declared states across all machines.
func (a *Analysis) StatesTotal() int {
	n := 0
	for _, m := range a.machines {
		n += len(m.States)
	}
	return n
}

// StatesReachable counts reachable states across all machines.
func (a *Analysis) StatesReachable() int {
	n := 0
	for _, m := range a.machines {
		n += len(m.Reachable)
	}
	return n
}

// Analyze builds and checks the state machine of every stateful entity.
func Analyze(model *ir.Model) *Analysis {
	a := &Analysis{byEntity: make(map[string]*Machine)}
	for _, e := range model.Entities() {
		if !e.Stateful() {
			continue
		}
		m, diags := analyzeEntity(e)
		a.machines = append(a.machines, m)
		a.byEntity[e.Name] = m
		a.Diagnostics = append(a.Diagnostics, diags...)
	}
	return a
}

func analyzeEntity(e *ir.Entity) (*Machine, []diag.Diagnostic) {
	m := &Machine{
		Entity:    e.Name,
		Inbound:   make(map[string]int, len(e.States)),
		Outbound:  make(map[string]int, len(e.States)),
		reachable: make(map[string]bool, len(e.States)),
		out:       make(map[string][]Edge, len(e.States)),
		Edges:     []Edge{},
		Reachable: []string{},
		Terminal:  []string{},
	}
	defined := make(map[string]bool, len(e.States))
	for _, s := range e.States {
		m.States = append(m.States, s.Name)
		defined[s.Name] = true
		m.Inbound[s.Name] = 0
		m.Outbound[s.Name] = 0
		if s.Terminal {
			m.Terminal = append(m.Terminal, s.Name)
		}
	}

	for i, t := range e.Transitions {
		if !defined[t.To] {
			continue
		}
		for _, from := range t.From {
			if !defined[from] {
				continue
			}
			edge := Edge{From: from, To: t.To, Trigger: t.Trigger, Transition: i}
			m.Edges = append(m.Edges, edge)
			m.out[from] = append(m.out[from], edge)
			m.Outbound[from]++
			m.Inbound[t.To]++
		}
	}

	var diags []diag.Diagnostic
	initials := e.InitialStates()
	switch len(initials) {
	case 0:
		diags = append(diags, diag.Errorf(diag.CodeNoInitialState, diag.Location{Entity: e.Name},
			"entity %q has states but no initial state", e.Name))
	case 1:
		m.Initial = initials[0]
		m.bfs()
		for _, s := range m.States {
			if !m.reachable[s] {
				diags = append(diags, diag.Errorf(diag.CodeUnreachableState, diag.Location{Entity: e.Name, State: s},
					"state %q cannot be reached from initial state %q", s, m.Initial))
			}
		}
	default:
		diags = append(diags, diag.Errorf(diag.CodeMultipleInitialStates, diag.Location{Entity: e.Name},
			"entity %q has %d initial states %v; exactly one is required", e.Name, len(initials), initials))
	}

	for _, s := range e.States {
		if m.Outbound[s.Name] == 0 && !s.Terminal {
			diags = append(diags, diag.Warnf(diag.CodeDeadEndState, diag.Location{Entity: e.Name, State: s.Name},
				"state %q has no outbound transitions but is not marked terminal", s.Name))
		}
	}

	for _, s := range e.States {
		if s.Initial || m.Inbound[s.Name] > 0 {
			continue
		}
		if m.Initial != "" && !m.reachable[s.Name] {
			continue
		}
		diags = append(diags, diag.Warnf(diag.CodeNoInboundTransition, diag.Location{Entity: e.Name, State: s.Name},
			"state %q has no inbound transitions", s.Name))
	}
	return m, diags
}

// bfs marks every state reachable from the initial state, following edges
// in declaration order.
func (m *Machine) bfs() {
	queue := []string{m.Initial}
	m.reachable[m.Initial] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range m.out[cur] {
			if !m.reachable[edge.To] {
				m.reachable[edge.To] = true
				queue = append(queue, edge.To)
			}
		}
	}
	for _, s := range m.States {
		if m.reachable[s] {
			m.Reachable = append(m.Reachable, s)
		}
	}
}
