package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kukula/lattice/internal/cases"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/testutil/fixtures"
)

func run(t *testing.T, src string) *engine.Result {
	t.Helper()
	return engine.New().Analyze(fixtures.Model(t, src))
}

func TestText_Failed(t *testing.T) {
	got := Text(run(t, fixtures.TaskUnreachable))
	want := "ERRORS:\n" +
		"  ✘ [Task.secret] UNREACHABLE_STATE: state \"secret\" cannot be reached from initial state \"pending\"\n" +
		"\n" +
		"WARNINGS:\n" +
		"  (none)\n" +
		"\n" +
		"COVERAGE:\n" +
		"  Task: 2/4 states entered, 3/4 reachable\n" +
		"\n" +
		"Validation failed: 1 error(s), 0 warning(s)\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestText_PassedWithWarnings(t *testing.T) {
	got := Text(run(t, fixtures.RoleOrphan))
	if !strings.Contains(got, "ERRORS:\n  (none)\n") {
		t.Errorf("missing empty errors section:\n%s", got)
	}
	if !strings.Contains(got, "⚠ [Role] ORPHAN_ENTITY") {
		t.Errorf("missing orphan warning:\n%s", got)
	}
	if strings.Contains(got, "COVERAGE:") {
		t.Errorf("stateless model must not print coverage:\n%s", got)
	}
	if !strings.HasSuffix(got, "Validation passed with 1 warning(s)\n") {
		t.Errorf("summary:\n%s", got)
	}
}

func TestText_Unclear(t *testing.T) {
	got := Text(run(t, "entities:\n  Invoice:\n    unclear: [who approves refunds?]\n"))
	if !strings.Contains(got, "UNCLEAR:\n  ℹ [Invoice] UNCLEAR: who approves refunds?\n") {
		t.Errorf("unclear section:\n%s", got)
	}
	if !strings.HasSuffix(got, "Validation passed, 1 unclear item(s)\n") {
		t.Errorf("summary:\n%s", got)
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, run(t, fixtures.TaskUnreachable), FormatJSON); err != nil {
		t.Fatal(err)
	}
	var rep JSONReport
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if rep.Valid || rep.ErrorCount != 1 || rep.WarningCount != 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Issues) != 1 || rep.Issues[0].Code != "UNREACHABLE_STATE" || rep.Issues[0].State != "secret" {
		t.Errorf("issues = %+v", rep.Issues)
	}
	if !strings.Contains(buf.String(), `"severity": "error"`) {
		t.Errorf("severity must encode as text:\n%s", buf.String())
	}
	if len(rep.Coverage) != 1 || rep.Coverage[0].Covered != 2 || rep.Coverage[0].Total != 4 {
		t.Errorf("coverage = %+v", rep.Coverage)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, run(t, fixtures.RoleOrphan), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteCases(t *testing.T) {
	m := fixtures.Model(t, fixtures.TaskUnreachable)
	res := engine.New().Analyze(m)
	var buf bytes.Buffer
	if err := WriteCases(&buf, cases.Derive(res.Model, res.Analysis)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"name": "test_task_pending_to_in_progress"`) {
		t.Errorf("cases json:\n%s", buf.String())
	}
}
