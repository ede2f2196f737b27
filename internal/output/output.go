// Package output renders validation results as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kukula/lattice/internal/cases"
	"github.com/kukula/lattice/internal/diag"
	"github.com/kukula/lattice/internal/engine"
)

// Formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Formats lists the supported report formats.
func Formats() []string {
	return []string{FormatText, FormatJSON}
}

// Write renders res to w in the given format.
func Write(w io.Writer, res *engine.Result, format string) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(w, Text(res))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewJSONReport(res))
	default:
		return fmt.Errorf("output: unknown format %q", format)
	}
}

var symbols = map[diag.Kind]string{
	diag.KindError:   "✘",
	diag.KindWarning: "⚠",
	diag.KindUnclear: "ℹ",
}

// Text renders the report in sections followed by a summary line.
func Text(res *engine.Result) string {
	var b strings.Builder
	rep := res.Report

	section := func(title string, kind diag.Kind) {
		b.WriteString(title + ":\n")
		items := rep.Filter(kind)
		if len(items) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, d := range items {
			fmt.Fprintf(&b, "  %s [%s] %s: %s\n", symbols[kind], d.Location, d.Code, d.Message)
		}
		b.WriteString("\n")
	}
	section("ERRORS", diag.KindError)
	section("WARNINGS", diag.KindWarning)
	if rep.Summary.Unclear > 0 {
		section("UNCLEAR", diag.KindUnclear)
	}

	if res.Analysis != nil && len(res.Analysis.Machines()) > 0 {
		b.WriteString("COVERAGE:\n")
		for _, m := range res.Analysis.Machines() {
			covered, total := m.Coverage()
			fmt.Fprintf(&b, "  %s: %d/%d states entered, %d/%d reachable\n",
				m.Entity, covered, total, len(m.Reachable), total)
		}
		b.WriteString("\n")
	}

	b.WriteString(SummaryLine(rep) + "\n")
	return b.String()
}

// SummaryLine is the one-line verdict printed at the end of a text report.
func SummaryLine(rep *diag.Report) string {
	s := rep.Summary
	var line string
	switch {
	case !rep.OK():
		line = fmt.Sprintf("Validation failed: %d error(s), %d warning(s)", s.Errors, s.Warnings)
	case s.Warnings > 0:
		line = fmt.Sprintf("Validation passed with %d warning(s)", s.Warnings)
	default:
		line = "Validation passed"
	}
	if s.Unclear > 0 {
		line += fmt.Sprintf(", %d unclear item(s)", s.Unclear)
	}
	return line
}

// JSONIssue is one diagnostic in the JSON report.
type JSONIssue struct {
	Severity   diag.Kind `json:"severity"`
	Code       diag.Code `json:"code"`
	Message    string    `json:"message"`
	Entity     string    `json:"entity,omitempty"`
	State      string    `json:"state,omitempty"`
	Transition string    `json:"transition,omitempty"`
}

// JSONCoverage is the coverage of one state machine.
type JSONCoverage struct {
	Entity    string `json:"entity"`
	Covered   int    `json:"covered"`
	Reachable int    `json:"reachable"`
	Total     int    `json:"total"`
}

// JSONReport is the machine-readable report shape.
type JSONReport struct {
	Valid        bool           `json:"valid"`
	ErrorCount   int            `json:"error_count"`
	WarningCount int            `json:"warning_count"`
	UnclearCount int            `json:"unclear_count"`
	Issues       []JSONIssue    `json:"issues"`
	Summary      diag.Summary   `json:"summary"`
	Coverage     []JSONCoverage `json:"coverage"`
}

// NewJSONReport flattens res into the JSON report shape.
func NewJSONReport(res *engine.Result) JSONReport {
	rep := res.Report
	out := JSONReport{
		Valid:        rep.OK(),
		ErrorCount:   rep.Summary.Errors,
		WarningCount: rep.Summary.Warnings,
		UnclearCount: rep.Summary.Unclear,
		Issues:       make([]JSONIssue, 0, len(rep.Diagnostics)),
		Summary:      rep.Summary,
		Coverage:     []JSONCoverage{},
	}
	for _, d := range rep.Diagnostics {
		out.Issues = append(out.Issues, JSONIssue{
			Severity:   d.Kind,
			Code:       d.Code,
			Message:    d.Message,
			Entity:     d.Location.Entity,
			State:      d.Location.State,
			Transition: d.Location.Transition,
		})
	}
	if res.Analysis != nil {
		for _, m := range res.Analysis.Machines() {
			covered, total := m.Coverage()
			out.Coverage = append(out.Coverage, JSONCoverage{
				Entity:    m.Entity,
				Covered:   covered,
				Reachable: len(m.Reachable),
				Total:     total,
			})
		}
	}
	return out
}

// WriteCases renders a derived case set as indented JSON.
func WriteCases(w io.Writer, set *cases.Set) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}
