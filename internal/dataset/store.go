package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// #region collections

// Collection names a persisted JSON array of records.
type Collection string

const (
	Train      Collection = "train"
	Validation Collection = "validation"
	Test       Collection = "test"
	// Events is the unsplit source collection read by the split tool.
	Events Collection = "events"
)

// #endregion collections

// #region store

// Store reads and writes collections as <dir>/<name>.json.
type Store struct {
	Dir  string
	Mode LabelMode
}

// NewStore returns a store rooted at dir that validates records for mode.
func NewStore(dir string, mode LabelMode) *Store {
	return &Store{Dir: dir, Mode: mode}
}

// Path is the file backing a collection.
func (s *Store) Path(c Collection) string {
	return filepath.Join(s.Dir, string(c)+".json")
}

// Load reads and schema-validates a collection.
func (s *Store) Load(c Collection) ([]Record, error) {
	path := s.Path(c)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := Validate(data, s.Mode); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// Save replaces a collection. The file is written to a temp file in the same
// directory and renamed into place so readers never see a partial array.
func (s *Store) Save(c Collection, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+string(c)+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", c, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", c, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(c)); err != nil {
		return fmt.Errorf("replace %s: %w", s.Path(c), err)
	}
	return nil
}

// Append loads a collection, adds records and re-persists the whole array.
// A missing collection is treated as empty.
func (s *Store) Append(c Collection, records ...Record) (int, error) {
	current, err := s.Load(c)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
		current = nil
	}
	current = append(current, records...)
	if err := s.Save(c, current); err != nil {
		return 0, err
	}
	return len(current), nil
}

// #endregion store
