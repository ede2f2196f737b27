package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadError reports a model file that cannot be read or decoded.
type LoadError struct {
	Path string
	Msg  string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Msg
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Extensions lists the file extensions recognised as model documents.
var Extensions = []string{".yaml", ".yml", ".md"}

// IsModelFile reports whether path has a model document extension.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads and decodes the model document at path. Markdown files carry
// the model in their YAML frontmatter.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: path, Msg: "file not found", Err: err}
		}
		return nil, &LoadError{Path: path, Msg: "cannot stat file", Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Path: path, Msg: "not a file"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Msg: "cannot read file", Err: err}
	}
	return ParseFile(path, data)
}

// ParseFile decodes data read from path. The path selects Markdown
// frontmatter extraction and becomes the document source.
func ParseFile(path string, data []byte) (*Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".md") {
		data = frontmatter(data)
	}
	doc, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	doc.Source = path
	return doc, nil
}

// Parse decodes a YAML model document. Empty input yields an empty document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Msg: "invalid YAML: " + err.Error(), Err: err}
	}
	doc := &Document{}
	if root.Kind == 0 || len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind == yaml.ScalarNode && top.Tag == "!!null" {
		return doc, nil
	}
	if top.Kind != yaml.MappingNode {
		return nil, &LoadError{Msg: fmt.Sprintf("expected YAML mapping at root, got %s", kindName(top))}
	}
	if err := top.Decode(doc); err != nil {
		return nil, &LoadError{Msg: "invalid document: " + err.Error(), Err: err}
	}
	return doc, nil
}

// frontmatter returns the YAML block between the leading --- delimiters of
// a Markdown file, or nil when there is none.
func frontmatter(data []byte) []byte {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil
	}
	return rest[:idx]
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "mapping"
	}
}
