package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kukula/lattice/internal/apperr"
	"github.com/kukula/lattice/internal/models"
)

// Run status filters accepted by ListRuns.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

// RunRow represents a row in the runs table: the latest validation of one
// model file.
type RunRow struct {
	Path            string
	Checksum        string
	Valid           bool
	Errors          int
	Warnings        int
	Unclear         int
	Entities        int
	StatesTotal     int
	StatesReachable int
	LoadError       string
	ValidatedAt     time.Time
}

// Failed reports whether the file could not be loaded or built.
func (r RunRow) Failed() bool { return r.LoadError != "" }

// IssueFilter narrows Issues. Empty fields match everything.
type IssueFilter struct {
	Path     string
	Severity string
	Code     string
	Limit    int
}

// SearchResult represents one diagnostic matching a search.
type SearchResult struct {
	Path    string
	Code    string
	Message string
}

// Record replaces the stored run of rec.Run.Path, its diagnostics and its
// entity graph within a transaction.
func (db *DB) Record(rec *Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	r := rec.Run
	_, err = tx.Exec(`
		INSERT INTO runs (path, checksum, valid, errors, warnings, unclear, entities,
		                  states_total, states_reachable, load_error, validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum         = excluded.checksum,
			valid            = excluded.valid,
			errors           = excluded.errors,
			warnings         = excluded.warnings,
			unclear          = excluded.unclear,
			entities         = excluded.entities,
			states_total     = excluded.states_total,
			states_reachable = excluded.states_reachable,
			load_error       = excluded.load_error,
			validated_at     = excluded.validated_at
	`, r.Path, r.Checksum, r.Valid, r.Errors, r.Warnings, r.Unclear, r.Entities,
		r.StatesTotal, r.StatesReachable, r.LoadError, r.ValidatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert run: %w", err)
	}

	for _, table := range []string{"diagnostics", "entities", "relationships"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE path = ?`, r.Path); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}

	if len(rec.Issues) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO diagnostics (path, seq, severity, code, message, entity, state, transition)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare diagnostic insert: %w", err)
		}
		defer stmt.Close()
		for i, is := range rec.Issues {
			if _, err := stmt.Exec(r.Path, i, is.Severity, is.Code, is.Message, is.Entity, is.State, is.Transition); err != nil {
				return fmt.Errorf("index: insert diagnostic: %w", err)
			}
		}
	}

	for i, n := range rec.Nodes {
		states, _ := json.Marshal(nonNil(n.States))
		if _, err := tx.Exec(`INSERT INTO entities (path, seq, name, stateful, states) VALUES (?, ?, ?, ?, ?)`,
			r.Path, i, n.ID, n.Stateful, string(states)); err != nil {
			return fmt.Errorf("index: insert entity: %w", err)
		}
	}

	for i, l := range rec.Links {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO relationships (path, seq, source, target, type) VALUES (?, ?, ?, ?, ?)`,
			r.Path, i, l.Source, l.Target, l.Type); err != nil {
			return fmt.Errorf("index: insert relationship: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a run together with its diagnostics and graph.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM runs WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete run: %w", err)
	}
	return nil
}

// GetChecksum returns the checksum of the last validated content, or empty
// string if the file was never validated.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM runs WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the stored checksum of every recorded path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const runColumns = `path, checksum, valid, errors, warnings, unclear, entities,
	states_total, states_reachable, load_error, validated_at`

func scanRun(s interface{ Scan(...any) error }) (RunRow, error) {
	var r RunRow
	err := s.Scan(&r.Path, &r.Checksum, &r.Valid, &r.Errors, &r.Warnings, &r.Unclear, &r.Entities,
		&r.StatesTotal, &r.StatesReachable, &r.LoadError, &r.ValidatedAt)
	return r, err
}

// GetRun returns the stored run for path or apperr.ErrNotFound.
func (db *DB) GetRun(path string) (*RunRow, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns a page of runs ordered by path and the total number of
// runs matching status ("", "valid", "invalid" or "failed").
func (db *DB) ListRuns(limit, offset int, status string) ([]RunRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var where string
	switch status {
	case "":
	case StatusValid:
		where = ` WHERE valid = 1`
	case StatusInvalid:
		where = ` WHERE valid = 0 AND load_error = ''`
	case StatusFailed:
		where = ` WHERE load_error != ''`
	default:
		return nil, 0, fmt.Errorf("index: unknown status %q", status)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs` + where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count runs: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM runs`+where+` ORDER BY path LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list runs: %w", err)
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Issues returns stored diagnostics in report order, grouped by path.
func (db *DB) Issues(f IssueFilter) ([]models.Issue, error) {
	var (
		conds []string
		args  []any
	)
	if f.Path != "" {
		conds = append(conds, "path = ?")
		args = append(args, f.Path)
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Code != "" {
		conds = append(conds, "code = ?")
		args = append(args, f.Code)
	}
	q := `SELECT path, seq, severity, code, message, entity, state, transition FROM diagnostics`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY path, seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: issues: %w", err)
	}
	defer rows.Close()
	var out []models.Issue
	for rows.Next() {
		var is models.Issue
		if err := rows.Scan(&is.Path, &is.Seq, &is.Severity, &is.Code, &is.Message, &is.Entity, &is.State, &is.Transition); err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// Search performs a LIKE-based search over diagnostic messages, codes and
// locations.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, code, message
		FROM diagnostics
		WHERE message LIKE ? OR code LIKE ? OR entity LIKE ?
		ORDER BY path, seq
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Code, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Graph returns the entities and relationship edges recorded for path, in
// declaration order.
func (db *DB) Graph(path string) ([]models.GraphNode, []models.GraphLink, error) {
	rows, err := db.conn.Query(`SELECT name, stateful, states FROM entities WHERE path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer rows.Close()
	nodes := []models.GraphNode{}
	for rows.Next() {
		var (
			n      models.GraphNode
			states string
		)
		if err := rows.Scan(&n.ID, &n.Stateful, &states); err != nil {
			return nil, nil, err
		}
		_ = json.Unmarshal([]byte(states), &n.States)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := db.conn.Query(`SELECT source, target, type FROM relationships WHERE path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer lrows.Close()
	links := []models.GraphLink{}
	for lrows.Next() {
		var l models.GraphLink
		if err := lrows.Scan(&l.Source, &l.Target, &l.Type); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, lrows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
