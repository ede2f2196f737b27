package cases

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kukula/lattice/internal/ir"
	"github.com/kukula/lattice/internal/statemachine"
	"github.com/kukula/lattice/internal/testutil/fixtures"
)

func derive(t *testing.T, src string) *Set {
	t.Helper()
	m := fixtures.Model(t, src)
	return Derive(m, statemachine.Analyze(m))
}

func byKind(s Suite, k Kind) []Case {
	var out []Case
	for _, c := range s.Cases {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

func TestDerive_OrderLifecycle(t *testing.T) {
	set := derive(t, fixtures.OrderLifecycle)
	if len(set.Suites) != 1 || set.Suites[0].Entity != "Order" {
		t.Fatalf("suites = %+v", set.Suites)
	}
	order := set.Suites[0]
	if set.Total() != 21 {
		t.Errorf("total = %d, want 21", set.Total())
	}

	pos := byKind(order, KindPositiveTransition)
	if len(pos) != 10 {
		t.Fatalf("positive = %d", len(pos))
	}
	if pos[0].Name != "test_order_draft_to_submitted" || pos[0].Trigger != "submit" || pos[0].Guards[0] != "total > 0" {
		t.Errorf("first positive = %+v", pos[0])
	}
	if pos[3].Name != "test_order_submitted_to_paid" || pos[3].Effects[0] != "send_receipt" {
		t.Errorf("fourth positive = %+v", pos[3])
	}
	if pos[4].Name != "test_order_submitted_to_draft" || pos[4].Trigger != "revise" {
		t.Errorf("fifth positive = %+v", pos[4])
	}

	var neg []string
	for _, c := range byKind(order, KindNegativeTransition) {
		neg = append(neg, c.From+">"+c.To)
	}
	want := []string{"draft>paid", "submitted>processing", "paid>shipped", "processing>delivered", "shipped>returned", "delivered>refunded"}
	if !reflect.DeepEqual(neg, want) {
		t.Errorf("negative = %v, want %v", neg, want)
	}

	happy := byKind(order, KindHappyPath)
	var ends []string
	for _, c := range happy {
		ends = append(ends, c.To)
	}
	if strings.Join(ends, ",") != "cancelled,delivered,refunded" {
		t.Errorf("happy path order = %v", ends)
	}
	if happy[1].Name != "test_order_lifecycle_to_delivered" || len(happy[1].Path) != 6 {
		t.Errorf("delivered path = %+v", happy[1])
	}

	inv := byKind(order, KindEntityInvariant)
	if len(inv) != 2 || inv[0].Name != "test_order_invariant_total_is_never_negative" || inv[0].Formal != "total >= 0" {
		t.Errorf("invariants = %+v", inv)
	}
}

func TestDerive_SystemInvariantsAndUniqueNames(t *testing.T) {
	set := derive(t, `
entities:
  Account:
    invariants:
      - balance is positive!
      - balance is positive?
system_invariants:
  - description: a very long system invariant description that keeps going
    formal: accounts.count > 0
`)
	if len(set.Suites) != 2 {
		t.Fatalf("suites = %+v", set.Suites)
	}
	acct := set.Suites[0].Cases
	if acct[0].Name != "test_account_invariant_balance_is_positive" || acct[1].Name != "test_account_invariant_balance_is_positive_2" {
		t.Errorf("names = %s, %s", acct[0].Name, acct[1].Name)
	}
	sys := set.Suites[1]
	if sys.Entity != SystemSuite || sys.Cases[0].Kind != KindSystemInvariant {
		t.Errorf("system suite = %+v", sys)
	}
	if sys.Cases[0].Name != "test_system_invariant_a_very_long_system_invariant_descript" {
		t.Errorf("system name = %s", sys.Cases[0].Name)
	}
}

func TestDerive_NoInitialNoNegativesOrPaths(t *testing.T) {
	set := derive(t, `
entities:
  Doc:
    states:
      - draft
      - name: published
        terminal: true
    transitions:
      - from: draft
        to: published
`)
	doc := set.Suites[0]
	if len(byKind(doc, KindNegativeTransition)) != 0 || len(byKind(doc, KindHappyPath)) != 0 {
		t.Errorf("cases = %+v", doc.Cases)
	}
	if len(byKind(doc, KindPositiveTransition)) != 1 {
		t.Errorf("positive cases missing")
	}
}

func TestHappyPaths_InitialTerminal(t *testing.T) {
	m := ir.NewModel()
	m.AddEntity(&ir.Entity{Name: "E", States: []ir.State{{Name: "only", Initial: true, Terminal: true}}})
	mach, _ := statemachine.Analyze(m).Machine("E")
	paths := HappyPaths(mach)
	if len(paths) != 1 || len(paths[0]) != 1 {
		t.Errorf("paths = %v", paths)
	}
	if set := Derive(m, statemachine.Analyze(m)); set.Total() != 0 {
		t.Errorf("single-state path must not produce a case: %+v", set)
	}
}
