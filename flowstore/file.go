package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/node"
)

// FileStore persists the flow set as one JSON document on disk. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// previous set.
type FileStore struct {
	path string
}

// NewFileStore creates a store at the given path. Parent directories are
// created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FileStore", "NewFileStore", "path validation")
	}
	return &FileStore{path: path}, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, set node.FlowSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "FileStore", "Save", "marshal flow set")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "create parent directory")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "write temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "replace flow file")
	}
	return nil
}

// Load implements Store. A missing file means nothing was ever deployed.
func (s *FileStore) Load(_ context.Context) (node.FlowSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return node.FlowSet{}, nil
		}
		return nil, errors.WrapTransient(err, "FileStore", "Load", "read flow file")
	}

	var set node.FlowSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("flow file %s: %w", s.path, err),
			"FileStore", "Load", "unmarshal flow set")
	}
	return set, nil
}
