package diag

import "sort"

// Summary holds the counters consumed by the CLI and the index.
type Summary struct {
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Unclear         int `json:"unclear"`
	StatesTotal     int `json:"states_total"`
	StatesReachable int `json:"states_reachable"`
}

// Report is the ordered, deduplicated result of one validation run.
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Summary     Summary      `json:"summary"`
}

// OK reports whether validation passed: true iff there is no Error.
// Warnings and Unclear items never fail a run.
func (r *Report) OK() bool {
	return r.Summary.Errors == 0
}

// Filter returns the diagnostics of the given kind, in report order.
func (r *Report) Filter(kind Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// WithCode returns the diagnostics carrying code, in report order.
func (r *Report) WithCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Aggregate merges analyzer output into a Report.
//
// sources are concatenated in the order given, exact duplicates are dropped
// (first occurrence wins), and the result is stably sorted by kind, then by
// the entity's position in entityOrder. Diagnostics whose entity is empty or
// not in entityOrder sort after all entities. Within one (kind, entity)
// bucket the emission order is preserved, so the report is independent of
// how analyzers were scheduled as long as each source list is deterministic.
func Aggregate(entityOrder []string, sources ...[]Diagnostic) *Report {
	rank := make(map[string]int, len(entityOrder))
	for i, name := range entityOrder {
		rank[name] = i
	}
	entityRank := func(d Diagnostic) int {
		if r, ok := rank[d.Location.Entity]; ok && d.Location.Entity != "" {
			return r
		}
		return len(entityOrder)
	}

	seen := make(map[Diagnostic]struct{})
	var all []Diagnostic
	for _, src := range sources {
		for _, d := range src {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			all = append(all, d)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		return entityRank(all[i]) < entityRank(all[j])
	})

	rep := &Report{Diagnostics: all}
	for _, d := range all {
		switch d.Kind {
		case KindError:
			rep.Summary.Errors++
		case KindWarning:
			rep.Summary.Warnings++
		case KindUnclear:
			rep.Summary.Unclear++
		}
	}
	if rep.Diagnostics == nil {
		rep.Diagnostics = []Diagnostic{}
	}
	return rep
}
