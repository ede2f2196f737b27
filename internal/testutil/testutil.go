// Package testutil provides shared test helpers for setting up workspaces,
// databases and services.
package testutil

import (
	"os"
	"testing"

	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/index"
	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lattice-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage.Provider.
func TestWorkspace(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestService wires a model service over a fresh workspace and database.
func TestService(t *testing.T) (*modelservice.Service, storage.Provider) {
	t.Helper()
	_, store := TestWorkspace(t)
	return modelservice.NewService(store, TestDB(t), engine.New()), store
}
