package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kukula/lattice/internal/checksum"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte("entities:\n  User:\n    attributes: [email]\n")
	if err := s.Write("model.yaml", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("model.yaml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Write("billing/orders/order.yml", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("billing/orders/order.yml")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("del.yaml", []byte("bye"))
	if err := s.Delete("del.yaml"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.yaml"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestMove(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("old.yaml", []byte("data"))
	if err := s.Move("old.yaml", "sub/new.yaml"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.yaml")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.yaml"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestList(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("a.yaml", []byte("a"))
	_ = s.Write("sub/b.yml", []byte("b"))
	_ = s.Write("docs/c.md", []byte("---\nentities: {}\n---\n"))
	if err := os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a model"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = s.Write(".git/config.yaml", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	if strings.Join(paths, ",") != "a.yaml,docs/c.md,sub/b.yml" {
		t.Errorf("paths = %v", paths)
	}
	for _, it := range items {
		if it.Path == "a.yaml" && it.Checksum != checksum.Sum([]byte("a")) {
			t.Errorf("checksum = %s", it.Checksum)
		}
	}
}

func TestWriteRejectsNonModelPath(t *testing.T) {
	s := tempWorkspace(t)
	for _, p := range []string{"readme.txt", "", ".", "dir/"} {
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrNotModelPath) {
			t.Errorf("Write(%q) err = %v, want ErrNotModelPath", p, err)
		}
	}
}

func TestMoveRefusesOverwrite(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("a.yaml", []byte("a"))
	_ = s.Write("b.yaml", []byte("b"))
	if err := s.Move("a.yaml", "b.yaml"); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("err = %v, want fs.ErrExist", err)
	}
	got, _ := s.Read("b.yaml")
	if string(got) != "b" {
		t.Errorf("target overwritten: %q", got)
	}
	if err := s.Move("a.yaml", "a.txt"); !errors.Is(err, ErrNotModelPath) {
		t.Errorf("err = %v, want ErrNotModelPath", err)
	}
}

func TestIsModelPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"order.yaml", true},
		{"dir/order.YML", true},
		{"notes.md", true},
		{"order.json", false},
		{TempPrefix + "123.yaml", false},
		{"dir/" + TempPrefix + "x", false},
	}
	for _, tt := range tests {
		if got := IsModelPath(tt.path); got != tt.want {
			t.Errorf("IsModelPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.yaml",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrOutsideWorkspace) {
			t.Errorf("write to %q: err = %v, want ErrOutsideWorkspace", p, err)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("atomic.yaml", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.yaml", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.yaml")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), TempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "lattice-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
