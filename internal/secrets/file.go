package secrets

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads a flat YAML or JSON map of secrets, loaded once. Keep the
// file out of version control and readable only by its owner.
type FileSource struct {
	path string
	data map[string]string
}

// NewFileSource loads path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("secrets: file path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	data := make(map[string]string)
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("secrets: parse %s: %w", path, err)
	}
	return &FileSource{path: path, data: data}, nil
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Get(_ context.Context, key string) (string, error) {
	val, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}
