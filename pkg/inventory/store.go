// Package inventory provides the durable local record of managed servers
// and sites.
//
// The backing document is a single YAML file holding a nested tree,
// addressed by dot-separated paths. Every mutation is written through to
// disk immediately. The store performs no locking and no optimistic
// concurrency check: it assumes a single operator invoking one command at
// a time against the document.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store is a dot-path-addressed nested record store backed by one YAML
// document.
type Store struct {
	path string
	doc  map[string]any
}

// Open reads the backing document at path. If the file does not exist, an
// empty document is created and persisted immediately.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = emptyDocument()
		if err := s.persist(); err != nil {
			return nil, err
		}
		log.Debug().Str("path", path).Msg("created empty inventory document")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	for _, key := range []string{"servers", "sites"} {
		if _, ok := doc[key]; !ok {
			doc[key] = map[string]any{}
		}
	}
	s.doc = doc

	return s, nil
}

// Get splits path on "." and walks the nested tree. It returns def if any
// segment is absent or the terminal value is nil.
func (s *Store) Get(path string, def any) any {
	return s.GetAt(strings.Split(path, "."), def)
}

// GetAt is Get with pre-split segments, for keys that themselves contain
// dots (site domains).
func (s *Store) GetAt(segments []string, def any) any {
	node := any(s.doc)
	for _, segment := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return def
		}
		node, ok = m[segment]
		if !ok {
			return def
		}
	}
	if node == nil {
		return def
	}
	return node
}

// Set walks path, creating intermediate maps as needed, assigns value at
// the terminal segment and persists the whole document.
func (s *Store) Set(path string, value any) error {
	return s.SetAt(strings.Split(path, "."), value)
}

// SetAt is Set with pre-split segments.
func (s *Store) SetAt(segments []string, value any) error {
	node := s.doc
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value

	return s.persist()
}

// Delete removes the terminal segment if present. A missing segment
// anywhere along the path is a no-op, not an error. The document is
// persisted afterwards either way.
func (s *Store) Delete(path string) error {
	return s.DeleteAt(strings.Split(path, "."))
}

// DeleteAt is Delete with pre-split segments.
func (s *Store) DeleteAt(segments []string) error {
	node := s.doc
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			return s.persist()
		}
		node = child
	}
	delete(node, segments[len(segments)-1])

	return s.persist()
}

// Path returns the location of the backing document.
func (s *Store) Path() string {
	return s.path
}

// persist writes the entire document to disk.
func (s *Store) persist() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create inventory directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	return nil
}

func emptyDocument() map[string]any {
	return map[string]any{
		"servers": map[string]any{},
		"sites":   map[string]any{},
	}
}
