package resolve

import (
	"strings"
	"testing"

	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/graph"
	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/schema"
)

func build(t *testing.T, src string) *ir.Model {
	t.Helper()
	doc, err := schema.Parse([]byte(src))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	m, err := graph.Build(doc)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return m
}

func TestResolve_CleanModel(t *testing.T) {
	m := build(t, `
entities:
  Customer:
    attributes: [email]
    relationships:
      - has_many: Order
  Order:
    belongs_to: Customer
    attributes:
      - name: total
        type: decimal
      - name: paid_at
        type: datetime
    computed:
      - name: is_paid
        formula: paid_at != null
    states:
      - name: draft
        initial: true
      - name: paid
        terminal: true
    transitions:
      - from: draft
        to: paid
        requires:
          - total > 0
          - customer.email != null
          - is_paid
    invariants:
      - description: total never negative
        formal: total >= 0
system_invariants:
  - description: every order has a customer
    formal: orders.all(o => o.customer != null)
roles: [admin]
permissions: [orders.read]
rules:
  - name: admin-read
    role: admin
    permissions: [orders.read]
`)
	res := Resolve(m)
	if !res.OK() || len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestResolve_EnumLiterals(t *testing.T) {
	m := build(t, `
entities:
  Ticket:
    attributes:
      - name: priority
        type: enum[low, high]
      - name: labels
        type: list<enum[bug, feature]>
    states:
      - name: open
        initial: true
      - name: closed
        terminal: true
    transitions:
      - from: open
        to: closed
        requires:
          - priority == high
          - bug in labels
          - priority == urgent
`)
	res := Resolve(m)
	if len(res.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
	if d := res.Diagnostics[0]; d.Code != diag.CodeReferenceIntegrity || !strings.Contains(d.Message, `"urgent"`) {
		t.Errorf("diagnostic = %v", d)
	}
}

func TestResolve_UndefinedTargetState(t *testing.T) {
	m := build(t, `
entities:
  Task:
    states:
      - name: open
        initial: true
      - done
    transitions:
      - from: open
        to: shipped
`)
	res := Resolve(m)
	if len(res.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Kind != diag.KindError || d.Code != diag.CodeReferenceIntegrity {
		t.Errorf("diagnostic = %v", d)
	}
	if d.Location.Entity != "Task" || d.Location.State != "shipped" || d.Location.Transition != "[open]->shipped" {
		t.Errorf("location = %+v", d.Location)
	}
	want := Reference{Entity: "Task", Field: "transitions[0].to", Token: "shipped"}
	if res.Unresolved[0] != want {
		t.Errorf("unresolved = %+v", res.Unresolved[0])
	}
}

func TestResolve_WalkOrder(t *testing.T) {
	m := build(t, `
entities:
  A:
    attributes:
      - name: owner
        type: Ghost
    relationships:
      - belongs_to: Phantom
    states:
      - name: s
        initial: true
        guard: missing_flag
    transitions:
      - from: [nowhere]
        to: s
        requires: [unknown_attr > 1]
    invariants:
      - description: bad
        formal: nope == 1
  B:
    relationships:
      - has_one: Spirit
system_invariants:
  - description: sys
    formal: zzz > 0
rules:
  - name: r
    role: ghost_role
    permissions: [ghost_perm]
`)
	res := Resolve(m)
	want := []string{"Ghost", "Phantom", "missing_flag", "nowhere", "unknown_attr", "nope", "Spirit", "zzz", "ghost_role", "ghost_perm"}
	if len(res.Unresolved) != len(want) {
		t.Fatalf("unresolved = %+v", res.Unresolved)
	}
	for i, tok := range want {
		if res.Unresolved[i].Token != tok {
			t.Errorf("unresolved[%d] = %s, want %s", i, res.Unresolved[i].Token, tok)
		}
	}
	if len(res.Diagnostics) != len(want) {
		t.Errorf("diagnostics = %d, want %d", len(res.Diagnostics), len(want))
	}
	last := res.Diagnostics[len(res.Diagnostics)-1]
	if last.Location.Entity != "" {
		t.Errorf("access rule diagnostics are system-level, got %+v", last.Location)
	}
}

func TestResolve_RelationshipAlias(t *testing.T) {
	m := build(t, `
entities:
  User:
    attributes: [name]
  Task:
    relationships:
      - type: belongs_to
        target: User
        as: assignee
    states:
      - name: open
        initial: true
      - name: assigned
        terminal: true
    transitions:
      - from: open
        to: assigned
        requires: [assignee.present, user.present]
`)
	res := Resolve(m)
	if !res.OK() {
		t.Errorf("alias and entity names must resolve: %+v", res.Unresolved)
	}
}

func TestResolve_DoesNotMutate(t *testing.T) {
	m := build(t, "entities:\n  A:\n    belongs_to: Missing\n")
	before, _ := m.MarshalJSON()
	Resolve(m)
	after, _ := m.MarshalJSON()
	if string(before) != string(after) {
		t.Error("model changed during resolution")
	}
}
