// Package batchlog persists the credit memo batches produced by a
// closing run until the workflow finalization service consumes them.
// Each batch is a single JSON file under the store directory.
package batchlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is the on-disk batch format shared with the finalizer.
type Record struct {
	Country     string `json:"country"`
	CompanyCode string `json:"company_code"`
	CreditMemos []int  `json:"credit_memos"`
}

// Store reads and writes batch records in a single directory.
type Store struct {
	dir string
}

// NewStore constructs a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("batchlog: empty store directory")
	}
	return &Store{dir: dir}, nil
}

// Create allocates the first unused batch id counting from 1 and
// writes an empty record for it.
func (s *Store) Create(country, companyCode string) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, err
	}

	id := 1
	for {
		_, err := os.Stat(s.path(id))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return 0, err
		}
		id++
	}

	rec := Record{
		Country:     country,
		CompanyCode: companyCode,
		CreditMemos: []int{},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return 0, err
	}
	return id, nil
}

// Append adds a credit memo number to an existing batch. The record
// is rewritten through a temp file and rename so a crash mid-write
// cannot leave a torn batch behind.
func (s *Store) Append(id, memo int) error {
	path := s.path(id)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("batchlog: decode %s: %w", filepath.Base(path), err)
	}

	rec.CreditMemos = append(rec.CreditMemos, memo)
	return s.rewrite(path, rec)
}

// LoadAll returns every batch record keyed by file base name.
func (s *Store) LoadAll() (map[string]Record, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	records := make(map[string]Record, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("batchlog: decode %s: %w", filepath.Base(path), err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		records[name] = rec
	}
	return records, nil
}

// Names returns the batch names in lexical order.
func (s *Store) Names() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a batch by name.
func (s *Store) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, name+".json"))
}

func (s *Store) rewrite(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("batch_%03d.json", id))
}
