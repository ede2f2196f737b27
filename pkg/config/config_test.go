package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

func (s *sample) Validate() error {
	if s.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "lattice")
	cfg := sample{Limit: 5}
	if err := Load(writeFile(t, "name: ${SAMPLE_NAME}\n"), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "lattice" || cfg.Limit != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	cfg := sample{}
	err := Load(writeFile(t, "limit: -1\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := sample{}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLoadIfExists(t *testing.T) {
	cfg := sample{Name: "default"}
	if err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Name != "default" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg = sample{Limit: -1}
	if err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("defaults must still be validated")
	}

	if err := LoadIfExists(writeFile(t, "name: file\n"), &sample{}); err != nil {
		t.Errorf("existing file: %v", err)
	}
}
