package index

import "github.com/kukula/lattice/internal/models"

// ModelIndex defines the interface for validation-run storage.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ModelIndex interface {
	Record(rec *Record) error
	Delete(path string) error
	GetChecksum(path string) (string, error)
	GetRun(path string) (*RunRow, error)
	ListRuns(limit, offset int, status string) ([]RunRow, int, error)
	Issues(f IssueFilter) ([]models.Issue, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph(path string) ([]models.GraphNode, []models.GraphLink, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies ModelIndex at compile time.
var _ ModelIndex = (*DB)(nil)
