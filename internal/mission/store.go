package mission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists missions as JSON files in a single directory, one file per
// mission, named after the mission.
type Store struct {
	dir string
}

// NewStore creates the mission directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating mission directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the mission under name (the mission name when empty) and
// returns the file path.
func (s *Store) Save(m *Mission, name string) (string, error) {
	if name == "" {
		name = m.Name
	}
	path := filepath.Join(s.dir, ensureExt(name))

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding mission %q: %w", m.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing mission %q: %w", m.Name, err)
	}
	return path, nil
}

// Load reads a mission by file name (extension optional).
func (s *Store) Load(name string) (*Mission, error) {
	path := filepath.Join(s.dir, ensureExt(name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mission %q: %w", name, err)
	}

	var m Mission
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding mission %q: %w", name, err)
	}
	return &m, nil
}

// List returns the stem names of every stored mission.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing missions: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

func ensureExt(name string) string {
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}
