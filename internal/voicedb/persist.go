package voicedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupt marks a database file that exists but cannot be decoded, or whose
// vectors disagree on dimension.
var ErrCorrupt = errors.New("voice database file is corrupt")

// loadFile reads the database from path. A missing file yields an empty
// database. Decode and consistency failures are wrapped in ErrCorrupt so the
// caller can apply its corruption policy.
func loadFile(path string, dim int) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDB(), nil
		}
		return nil, fmt.Errorf("read voice database: %w", err)
	}

	db := NewDB()
	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, speaker := range db.Speakers() {
		for _, vec := range db.Vectors(speaker) {
			if len(vec) != dim {
				return nil, fmt.Errorf("%w: speaker %q has a %d-dim vector, expected %d",
					ErrCorrupt, speaker, len(vec), dim)
			}
		}
	}
	return db, nil
}

// saveFile writes the full database in one operation: marshal, write a temp
// file in the same directory, then rename over the target so readers never
// observe a partial file.
func saveFile(path string, db *DB) error {
	data, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("marshal voice database: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write voice database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace voice database: %w", err)
	}
	return nil
}
