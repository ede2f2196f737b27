package ir

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestNewCondition_Signature(t *testing.T) {
	tests := []struct {
		expr      string
		wantRefs  []string
		wantCalls []string
	}{
		{"line_items.count > 0", []string{"line_items"}, nil},
		{"assigned_to.present", []string{"assigned_to"}, nil},
		{"total > 0 and status != 'cancelled'", []string{"total", "status"}, nil},
		{"paid_at <= now()", []string{"paid_at"}, nil},
		{"sum(line_items.price) == total", []string{"line_items", "total"}, []string{"sum"}},
		{"line_items.all(i => i.quantity > 0)", []string{"line_items"}, nil},
		{"all(x.qty > 0 for x in items)", []string{"items"}, []string{"all"}},
		{"pairs.all((a, b) => a < b)", []string{"pairs"}, nil},
		{"orders.map(o -> o.total)", []string{"orders"}, nil},
		{"state == shipped => payment.recorded", []string{"state", "shipped", "payment"}, nil},
		{"self.balance >= 0.5", nil, nil},
		{`name == "it's \"quoted\" total"`, []string{"name"}, nil},
		{"", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c := NewCondition(tt.expr)
			if !reflect.DeepEqual(c.Refs, tt.wantRefs) {
				t.Errorf("refs = %v, want %v", c.Refs, tt.wantRefs)
			}
			if !reflect.DeepEqual(c.Calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", c.Calls, tt.wantCalls)
			}
			if c.Expr != tt.expr {
				t.Errorf("expr = %q", c.Expr)
			}
		})
	}
}

func TestType_EnumLiterals(t *testing.T) {
	if got := ParseType("enum[low, high]", nil).EnumLiterals(); !reflect.DeepEqual(got, []string{"low", "high"}) {
		t.Errorf("enum literals = %v", got)
	}
	if got := ParseType("list<enum[a, b]>", nil).EnumLiterals(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("list literals = %v", got)
	}
	if got := ParseType("string", nil).EnumLiterals(); got != nil {
		t.Errorf("primitive literals = %v", got)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		raw    string
		values []string
		want   string
		kind   TypeKind
	}{
		{"string", nil, "string", TypePrimitive},
		{"", nil, "string", TypePrimitive},
		{"decimal", nil, "decimal", TypePrimitive},
		{"enum[low, medium, 'high']", nil, "enum[low, medium, high]", TypeEnum},
		{"enum", []string{"a", "b"}, "enum[a, b]", TypeEnum},
		{"ref<User>", nil, "ref<User>", TypeRef},
		{"Customer", nil, "ref<Customer>", TypeRef},
		{"list<LineItem>", nil, "list<ref<LineItem>>", TypeList},
		{"[string]", nil, "list<string>", TypeList},
	}
	for _, tt := range tests {
		got := ParseType(tt.raw, tt.values)
		if got.Kind != tt.kind || got.String() != tt.want {
			t.Errorf("ParseType(%q) = %s (%s), want %s (%s)", tt.raw, got, got.Kind, tt.want, tt.kind)
		}
	}
}

func TestType_RefTarget(t *testing.T) {
	if target, ok := ParseType("list<list<Tag>>", nil).RefTarget(); !ok || target != "Tag" {
		t.Errorf("RefTarget = %q, %v", target, ok)
	}
	if _, ok := ParseType("integer", nil).RefTarget(); ok {
		t.Error("primitive must not have a ref target")
	}
}

func TestRelationship_Names(t *testing.T) {
	tests := []struct {
		rel  Relationship
		want []string
	}{
		{Relationship{Kind: HasMany, Target: "LineItem"}, []string{"line_item", "line_items"}},
		{Relationship{Kind: BelongsTo, Target: "Category"}, []string{"category", "categories"}},
		{Relationship{Kind: HasOne, Target: "Address"}, []string{"address", "addresses"}},
		{Relationship{Kind: BelongsTo, Target: "User", Alias: "assigned_to"}, []string{"assigned_to"}},
	}
	for _, tt := range tests {
		if got := tt.rel.Names(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Names() = %v, want %v", tt.rel.Target, got, tt.want)
		}
	}
}

func TestModel_DeclarationOrder(t *testing.T) {
	m := NewModel()
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		if !m.AddEntity(&Entity{Name: name}) {
			t.Fatalf("AddEntity(%s) failed", name)
		}
	}
	if m.AddEntity(&Entity{Name: "Alpha"}) {
		t.Error("duplicate AddEntity must be rejected")
	}
	if got := strings.Join(m.EntityNames(), ","); got != "Zeta,Alpha,Mid" {
		t.Errorf("order = %s", got)
	}
	e, _ := m.Entity("Mid")
	if e.Index != 2 {
		t.Errorf("Mid.Index = %d, want 2", e.Index)
	}
}

func TestModel_MarshalJSONKeepsOrder(t *testing.T) {
	m := NewModel()
	m.AddEntity(&Entity{Name: "B"})
	m.AddEntity(&Entity{Name: "A"})
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"entities":[{"name":"B","index":0},{"name":"A","index":1}]`) {
		t.Errorf("json = %s", out)
	}
}

func TestTransition_ID(t *testing.T) {
	tr := Transition{From: []string{"draft", "submitted"}, To: "cancelled", Trigger: "cancel"}
	if got := tr.ID(); got != "[draft,submitted]->cancelled (cancel)" {
		t.Errorf("ID = %q", got)
	}
}
