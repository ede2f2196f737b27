package statemachine

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/testutil/fixtures"
)

func codes(ds []diag.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d.Code) + ":" + d.Location.State
	}
	return out
}

func TestAnalyze_TaskUnreachable(t *testing.T) {
	a := Analyze(fixtures.Model(t, fixtures.TaskUnreachable))
	if len(a.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", codes(a.Diagnostics))
	}
	d := a.Diagnostics[0]
	if d.Kind != diag.KindError || d.Code != diag.CodeUnreachableState || d.Location.Entity != "Task" || d.Location.State != "secret" {
		t.Errorf("diagnostic = %v", d)
	}
	m, ok := a.Machine("Task")
	if !ok {
		t.Fatal("Task machine missing")
	}
	if len(m.Reachable) != 3 || m.IsReachable("secret") {
		t.Errorf("reachable = %v", m.Reachable)
	}
	if a.StatesTotal() != 4 || a.StatesReachable() != 3 {
		t.Errorf("totals = %d/%d", a.StatesReachable(), a.StatesTotal())
	}
}

func TestAnalyze_OrderLifecycle(t *testing.T) {
	a := Analyze(fixtures.Model(t, fixtures.OrderLifecycle))
	if len(a.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", codes(a.Diagnostics))
	}
	m, _ := a.Machine("Order")
	if m.Outbound["processing"] != 1 {
		t.Errorf("processing outbound = %d", m.Outbound["processing"])
	}
	for _, s := range m.States {
		if m.Inbound[s] == 0 {
			t.Errorf("state %s has no inbound edge", s)
		}
	}
	if covered, total := m.Coverage(); covered != 9 || total != 9 {
		t.Errorf("coverage = %d/%d, want 9/9", covered, total)
	}
	if _, ok := a.Machine("Customer"); ok {
		t.Error("stateless entity must not get a machine")
	}
}

func TestCoverage_InitialWithoutInbound(t *testing.T) {
	m := ir.NewModel()
	m.AddEntity(&ir.Entity{
		Name: "Job",
		States: []ir.State{
			{Name: "queued", Initial: true},
			{Name: "running"},
			{Name: "done", Terminal: true},
		},
		Transitions: []ir.Transition{
			{From: []string{"queued"}, To: "running"},
			{From: []string{"running"}, To: "done"},
		},
	})
	mach, _ := Analyze(m).Machine("Job")
	if covered, total := mach.Coverage(); covered != 2 || total != 3 {
		t.Errorf("coverage = %d/%d, want 2/3", covered, total)
	}
}

func TestAnalyze_MultiSourceEdges(t *testing.T) {
	a := Analyze(fixtures.Model(t, fixtures.OrderLifecycle))
	m, _ := a.Machine("Order")
	var cancel []Edge
	for _, e := range m.Edges {
		if e.Trigger == "cancel" {
			cancel = append(cancel, e)
		}
	}
	if len(cancel) != 2 || cancel[0].From != "draft" || cancel[1].From != "submitted" || cancel[0].Transition != cancel[1].Transition {
		t.Errorf("cancel edges = %+v", cancel)
	}
	if m.Inbound["cancelled"] != 2 {
		t.Errorf("cancelled inbound = %d", m.Inbound["cancelled"])
	}
}

func TestAnalyze_UndefinedEndpointExcluded(t *testing.T) {
	a := Analyze(fixtures.Model(t, `
entities:
  Task:
    states:
      - name: open
        initial: true
      - name: done
        terminal: true
    transitions:
      - from: open
        to: done
      - from: [open, ghost]
        to: shipped
      - from: ghost
        to: done
`))
	m, _ := a.Machine("Task")
	if len(m.Edges) != 1 {
		t.Errorf("edges = %+v", m.Edges)
	}
	if len(a.Diagnostics) != 0 {
		t.Errorf("diagnostics = %v", codes(a.Diagnostics))
	}
}

func TestAnalyze_InitialStateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "no initial",
			src: `
entities:
  Doc:
    states: [draft, published]
    transitions:
      - from: draft
        to: published
`,
			want: []string{"NO_INITIAL_STATE:", "DEAD_END_STATE:published", "NO_INBOUND_TRANSITION:draft"},
		},
		{
			name: "two initials",
			src: `
entities:
  Doc:
    states:
      - name: a
        initial: true
      - name: b
        initial: true
      - name: c
        terminal: true
    transitions:
      - from: a
        to: c
`,
			want: []string{"MULTIPLE_INITIAL_STATES:", "DEAD_END_STATE:b"},
		},
		{
			name: "dead end",
			src: `
entities:
  Doc:
    states:
      - name: a
        initial: true
      - b
    transitions:
      - from: a
        to: b
`,
			want: []string{"DEAD_END_STATE:b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(Analyze(fixtures.Model(t, tt.src)).Diagnostics)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("diagnostics = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestAnalyze_ReachabilityMatchesClosure compares BFS against a naive
// fixpoint over random graphs.
func TestAnalyze_ReachabilityMatchesClosure(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(8)
		e := &ir.Entity{Name: "E"}
		for i := 0; i < n; i++ {
			e.States = append(e.States, ir.State{Name: fmt.Sprintf("s%d", i), Initial: i == 0})
		}
		for k := rng.Intn(2 * n); k > 0; k-- {
			var from []string
			for j := 1 + rng.Intn(2); j > 0; j-- {
				from = append(from, fmt.Sprintf("s%d", rng.Intn(n)))
			}
			e.Transitions = append(e.Transitions, ir.Transition{From: from, To: fmt.Sprintf("s%d", rng.Intn(n))})
		}
		model := ir.NewModel()
		model.AddEntity(e)

		want := map[string]bool{"s0": true}
		for changed := true; changed; {
			changed = false
			for _, tr := range e.Transitions {
				for _, f := range tr.From {
					if want[f] && !want[tr.To] {
						want[tr.To] = true
						changed = true
					}
				}
			}
		}

		a := Analyze(model)
		m, _ := a.Machine("E")
		unreachable := 0
		for _, d := range a.Diagnostics {
			if d.Code == diag.CodeUnreachableState {
				unreachable++
				if want[d.Location.State] {
					t.Fatalf("iter %d: %s reported unreachable but is reachable", iter, d.Location.State)
				}
			}
		}
		for _, s := range m.States {
			if m.IsReachable(s) != want[s] {
				t.Fatalf("iter %d: IsReachable(%s) = %v, want %v", iter, s, m.IsReachable(s), want[s])
			}
		}
		if unreachable != n-len(want) {
			t.Fatalf("iter %d: %d unreachable diagnostics, want %d", iter, unreachable, n-len(want))
		}
	}
}
