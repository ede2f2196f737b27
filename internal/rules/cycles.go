package rules

import (
	"sort"

	"github.com/kukula/lattice/internal/ir"
)

// Cycles returns the cyclic strongly connected components of the
// depends_on/belongs_to subgraph. Members are listed in discovery order
// and components are ordered by their first member's discovery. Edges to
// undefined entities are ignored.
func Cycles(m *ir.Model) [][]string {
	adj := make(map[string][]string)
	self := make(map[string]bool)
	for _, e := range m.Entities() {
		for _, r := range e.Relationships {
			if r.Kind != ir.DependsOn && r.Kind != ir.BelongsTo {
				continue
			}
			if !m.HasEntity(r.Target) {
				continue
			}
			adj[e.Name] = append(adj[e.Name], r.Target)
			if r.Target == e.Name {
				self[e.Name] = true
			}
		}
	}

	t := &tarjan{
		adj:     adj,
		index:   make(map[string]int),
		low:     make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, name := range m.EntityNames() {
		if _, seen := t.index[name]; !seen {
			t.connect(name)
		}
	}

	var out [][]string
	for _, scc := range t.sccs {
		if len(scc) < 2 && !self[scc[0]] {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return t.index[scc[i]] < t.index[scc[j]] })
		out = append(out, scc)
	}
	sort.SliceStable(out, func(i, j int) bool { return t.index[out[i][0]] < t.index[out[j][0]] })
	return out
}

type tarjan struct {
	adj     map[string][]string
	index   map[string]int
	low     map[string]int
	onStack map[string]bool
	stack   []string
	next    int
	sccs    [][]string
}

func (t *tarjan) connect(v string) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.index[w]; !seen {
			t.connect(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var scc []string
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	t.sccs = append(t.sccs, scc)
}
