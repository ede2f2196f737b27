package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kukula/lattice/internal/checksum"
	"github.com/kukula/lattice/internal/models"
	"github.com/kukula/lattice/internal/schema"
)

// TempPrefix names the temporary files Write creates next to their target.
// List and the watcher skip them.
const TempPrefix = ".lattice-tmp-"

var (
	// ErrNotModelPath is returned when a write or move targets a file that is
	// not a model document.
	ErrNotModelPath = errors.New("storage: not a model document path")
	// ErrOutsideWorkspace is returned for absolute paths and paths that
	// climb out of the workspace root.
	ErrOutsideWorkspace = errors.New("storage: path outside workspace")
)

// FS implements Provider on a workspace directory of model documents.
// Paths are slash-separated and relative to the root.
type FS struct {
	root string
	fsys fs.FS
}

// NewFS opens the workspace at root, which must be an existing directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, fsys: os.DirFS(abs)}, nil
}

// Root returns the absolute workspace directory.
func (f *FS) Root() string { return f.root }

// IsModelPath reports whether p names a model document that is not a
// temp file.
func IsModelPath(p string) bool {
	return schema.IsModelFile(p) && !strings.HasPrefix(filepath.Base(p), TempPrefix)
}

// clean normalizes a workspace-relative path into io/fs form. The empty
// string and "." both name the root.
func clean(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	if rel == "" {
		return ".", nil
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	p := path.Clean(rel)
	if !fs.ValidPath(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	return p, nil
}

func (f *FS) abs(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}

// List returns every model document under dir sorted by path. Hidden
// directories and in-flight temp files are skipped.
func (f *FS) List(dir string) ([]models.ModelFile, error) {
	base, err := clean(dir)
	if err != nil {
		return nil, err
	}
	var out []models.ModelFile
	err = fs.WalkDir(f.fsys, base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsModelPath(p) {
			return nil
		}
		mf, err := f.stat(p)
		if err != nil {
			return err
		}
		out = append(out, mf)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *FS) stat(p string) (models.ModelFile, error) {
	info, err := fs.Stat(f.fsys, p)
	if err != nil {
		return models.ModelFile{}, err
	}
	data, err := fs.ReadFile(f.fsys, p)
	if err != nil {
		return models.ModelFile{}, err
	}
	return models.ModelFile{Path: p, Checksum: checksum.Sum(data), UpdatedAt: info.ModTime()}, nil
}

// Read returns the raw bytes of a workspace file.
func (f *FS) Read(rel string) ([]byte, error) {
	p, err := clean(rel)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.fsys, p)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Write replaces the model document at rel. The content lands in a temp
// file in the target directory, is synced, then renamed over the target.
func (f *FS) Write(rel string, content []byte) error {
	p, err := f.modelPath(rel)
	if err != nil {
		return err
	}
	target := f.abs(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	if err := commit(tmp, content, target); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func commit(tmp *os.File, content []byte, target string) error {
	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Delete removes a file from the workspace.
func (f *FS) Delete(rel string) error {
	p, err := clean(rel)
	if err != nil {
		return err
	}
	if p == "." {
		return fmt.Errorf("storage: refusing to delete workspace root")
	}
	if err := os.Remove(f.abs(p)); err != nil {
		return fmt.Errorf("storage: delete %s: %w", rel, err)
	}
	return nil
}

// Move renames a model document. It never replaces an existing file; the
// error then wraps fs.ErrExist.
func (f *FS) Move(oldRel, newRel string) error {
	from, err := clean(oldRel)
	if err != nil {
		return err
	}
	to, err := f.modelPath(newRel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(f.abs(to)); err == nil {
		return fmt.Errorf("storage: move to %s: %w", newRel, fs.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(f.abs(to)), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(f.abs(from), f.abs(to)); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

func (f *FS) modelPath(rel string) (string, error) {
	p, err := clean(rel)
	if err != nil {
		return "", err
	}
	if p == "." || !IsModelPath(p) {
		return "", fmt.Errorf("%w: %s", ErrNotModelPath, rel)
	}
	return p, nil
}
