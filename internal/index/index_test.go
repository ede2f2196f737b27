package index

import (
	"errors"
	"os"
	"testing"

	"github.com/kukula/lattice/internal/apperr"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/testutil/fixtures"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "lattice-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(t *testing.T, db *DB, path, src string) *Record {
	t.Helper()
	rec, _, err := IndexFile(db, engine.New(), path, []byte(src))
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	return rec
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"runs", "diagnostics", "entities", "relationships"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestRecordAndGetRun(t *testing.T) {
	db := testDB(t)
	rec := record(t, db, "task.yaml", fixtures.TaskUnreachable)
	if rec.Run.Valid || rec.Run.Errors != 1 {
		t.Fatalf("run = %+v", rec.Run)
	}

	run, err := db.GetRun("task.yaml")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Valid || run.Errors != 1 || run.StatesTotal != 4 || run.StatesReachable != 3 || run.Entities != 1 {
		t.Errorf("stored run = %+v", run)
	}
	if run.Checksum != rec.Run.Checksum {
		t.Errorf("checksum = %q, want %q", run.Checksum, rec.Run.Checksum)
	}

	issues, err := db.Issues(IssueFilter{Path: "task.yaml"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if len(issues) != 1 || issues[0].Code != "UNREACHABLE_STATE" || issues[0].State != "secret" || issues[0].Severity != "error" {
		t.Errorf("issues = %+v", issues)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetRun("nope.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	cs, err := db.GetChecksum("nope.yaml")
	if err != nil || cs != "" {
		t.Errorf("GetChecksum = %q, %v", cs, err)
	}
}

func TestRecordFailedRun(t *testing.T) {
	db := testDB(t)
	rec := record(t, db, "broken.yaml", "entities: [")
	if !rec.Run.Failed() {
		t.Fatal("expected a failed run")
	}
	run, err := db.GetRun("broken.yaml")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.LoadError == "" || run.Valid {
		t.Errorf("run = %+v", run)
	}
}

func TestRecordReplacesPrevious(t *testing.T) {
	db := testDB(t)
	record(t, db, "m.yaml", fixtures.TaskUnreachable)
	record(t, db, "m.yaml", fixtures.RoleOrphan)

	issues, _ := db.Issues(IssueFilter{Path: "m.yaml"})
	if len(issues) != 1 || issues[0].Code != "ORPHAN_ENTITY" {
		t.Errorf("issues = %+v", issues)
	}
	nodes, links, err := db.Graph("m.yaml")
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 4 || nodes[0].ID != "User" || nodes[3].ID != "Role" {
		t.Errorf("nodes = %+v", nodes)
	}
	if len(links) != 3 || links[0].Source != "User" || links[0].Target != "Permission" || links[0].Type != "has_many" {
		t.Errorf("links = %+v", links)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	record(t, db, "del.yaml", fixtures.TaskUnreachable)
	if err := db.Delete("del.yaml"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cs, _ := db.GetChecksum("del.yaml"); cs != "" {
		t.Errorf("deleted run still has checksum %q", cs)
	}
	issues, _ := db.Issues(IssueFilter{Path: "del.yaml"})
	if len(issues) != 0 {
		t.Errorf("diagnostics survived delete: %+v", issues)
	}
	nodes, _, _ := db.Graph("del.yaml")
	if len(nodes) != 0 {
		t.Errorf("entities survived delete: %+v", nodes)
	}
}

func TestListRuns(t *testing.T) {
	db := testDB(t)
	record(t, db, "a.yaml", fixtures.RoleOrphan)
	record(t, db, "b.yaml", fixtures.TaskUnreachable)
	record(t, db, "c.yaml", "- not a mapping\n")

	tests := []struct {
		status string
		want   []string
	}{
		{"", []string{"a.yaml", "b.yaml", "c.yaml"}},
		{StatusValid, []string{"a.yaml"}},
		{StatusInvalid, []string{"b.yaml"}},
		{StatusFailed, []string{"c.yaml"}},
	}
	for _, tt := range tests {
		rows, total, err := db.ListRuns(10, 0, tt.status)
		if err != nil {
			t.Fatalf("ListRuns(%q): %v", tt.status, err)
		}
		if total != len(tt.want) || len(rows) != len(tt.want) {
			t.Errorf("ListRuns(%q) = %d rows, total %d", tt.status, len(rows), total)
			continue
		}
		for i, r := range rows {
			if r.Path != tt.want[i] {
				t.Errorf("ListRuns(%q)[%d] = %s, want %s", tt.status, i, r.Path, tt.want[i])
			}
		}
	}

	rows, total, _ := db.ListRuns(1, 1, "")
	if total != 3 || len(rows) != 1 || rows[0].Path != "b.yaml" {
		t.Errorf("paged = %+v, total %d", rows, total)
	}
	if _, _, err := db.ListRuns(10, 0, "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestIssuesFilterAndSearch(t *testing.T) {
	db := testDB(t)
	record(t, db, "a.yaml", fixtures.RoleOrphan)
	record(t, db, "b.yaml", fixtures.TaskUnreachable)

	warnings, err := db.Issues(IssueFilter{Severity: "warning"})
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Path != "a.yaml" {
		t.Errorf("warnings = %+v", warnings)
	}
	byCode, _ := db.Issues(IssueFilter{Code: "UNREACHABLE_STATE"})
	if len(byCode) != 1 || byCode[0].Path != "b.yaml" {
		t.Errorf("by code = %+v", byCode)
	}

	results, err := db.Search("secret", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "b.yaml" || results[0].Code != "UNREACHABLE_STATE" {
		t.Errorf("search results = %+v", results)
	}
}

func TestGraphOf_RefAttributes(t *testing.T) {
	m := fixtures.Model(t, `
entities:
  Invoice:
    attributes:
      - name: customer
        type: Customer
  Customer:
    attributes: [email]
`)
	nodes, links := GraphOf(m)
	if len(nodes) != 2 || nodes[0].Stateful {
		t.Errorf("nodes = %+v", nodes)
	}
	if len(links) != 1 || links[0].Type != "ref" || links[0].Target != "Customer" {
		t.Errorf("links = %+v", links)
	}
}
