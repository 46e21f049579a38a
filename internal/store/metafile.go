package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadMetaFile reads a JSON-encoded Metadata document written by WriteMetaFile.
func LoadMetaFile(path string) (*MemoryMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file %s: %w", path, err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parsing metadata file %s: %w", path, err)
	}
	if md.Lengths == nil {
		return nil, fmt.Errorf("metadata file %s: missing lengths", path)
	}
	return NewMemoryMeta(md), nil
}

// WriteMetaFile writes md to path through a temp file and rename.
func WriteMetaFile(path string, md Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing metadata file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming metadata file: %w", err)
	}
	return nil
}
