package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"Tale-Weaver/server/internal/models"
)

// Store persists one record kind as individual JSON files inside a
// directory, one file per record keyed by id. Records are expected to be
// self-describing (they embed their own id or name), so a single corrupt
// file can be skipped during listing without failing the whole call.
type Store[T any] struct {
	dir string
}

// NewStore opens a store rooted at dir, creating the directory if needed.
func NewStore[T any](dir string) (*Store[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store[T]{dir: dir}, nil
}

func (s *Store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create writes a new record. The write is all-or-nothing: the record is
// serialized to a temporary file and renamed into place, so a reader
// never observes a half-written fragment.
func (s *Store[T]) Create(id string, record T) error {
	return s.write(id, record)
}

// Update overwrites an existing record with the same atomicity as Create.
func (s *Store[T]) Update(id string, record T) error {
	return s.write(id, record)
}

func (s *Store[T]) write(id string, record T) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return nil
}

// Read returns the record stored under id. A read immediately following
// a successful Create or Update observes the just-written value.
func (s *Store[T]) Read(id string) (T, error) {
	var record T
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record, fmt.Errorf("record %s: %w", id, models.ErrNotFound)
		}
		return record, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("record %s: %w", id, models.ErrCorrupt)
	}
	return record, nil
}

// List returns every readable record in the store. Files that fail to
// parse are logged and skipped rather than failing the listing.
func (s *Store[T]) List() ([]T, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	records := make([]T, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := s.Read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Printf("[Store] skipping unreadable record %s: %v", name, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes the record stored under id. Deleting an absent id
// reports NotFound without touching the store.
func (s *Store[T]) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("record %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// SafeID reduces a user-supplied name to a filesystem-safe record id.
func SafeID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	id := b.String()
	if id == "" {
		id = "unnamed"
	}
	return id
}
