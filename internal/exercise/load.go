package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// maxDefinitionBytes caps a definition document.
const maxDefinitionBytes = 1 << 20

// ErrNotFound is returned when a source has no definition for an id.
var ErrNotFound = errors.New("exercise definition not found")

// Load reads a definition from a .json or .toml file, normalizes it and
// validates it.
func Load(path string) (*Definition, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("exercise definition must be .json or .toml, got %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open exercise definition: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDefinitionBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read exercise definition: %w", err)
	}
	if len(data) > maxDefinitionBytes {
		return nil, fmt.Errorf("exercise definition %s exceeds %d bytes", path, maxDefinitionBytes)
	}

	var def Definition
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse exercise definition %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &def); err != nil {
			return nil, fmt.Errorf("parse exercise definition %s: %w", path, err)
		}
	}

	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	def.Normalize()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &def, nil
}

// Source resolves exercise definitions by id.
type Source interface {
	Definition(ctx context.Context, id string) (*Definition, error)
}

// DirSource loads definitions from <Dir>/<id>.json or <Dir>/<id>.toml.
// Parsed definitions are cached for the lifetime of the source.
type DirSource struct {
	Dir string

	mu    sync.Mutex
	cache map[string]*Definition
}

// NewDirSource returns a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir, cache: make(map[string]*Definition)}
}

// Definition implements Source.
func (s *DirSource) Definition(ctx context.Context, id string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = make(map[string]*Definition)
	}
	if def, ok := s.cache[id]; ok {
		return def, nil
	}

	for _, ext := range []string{".json", ".toml"} {
		path := filepath.Join(s.Dir, id+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		s.cache[id] = def
		return def, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// IDs lists the definition ids available in the directory, sorted.
func (s *DirSource) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercise definitions: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".toml" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MapSource is an in-memory Source keyed by id.
type MapSource map[string]*Definition

// Definition implements Source.
func (m MapSource) Definition(_ context.Context, id string) (*Definition, error) {
	def, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return def, nil
}

// FallbackSource returns the generic definition for ids the wrapped
// source does not know.
type FallbackSource struct {
	Source Source
}

// Definition implements Source.
func (f FallbackSource) Definition(ctx context.Context, id string) (*Definition, error) {
	if f.Source != nil {
		def, err := f.Source.Definition(ctx, id)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return Generic(id), nil
}
