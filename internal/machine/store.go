package machine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"s7gateway/internal/faults"
)

// Store is the file-backed machine-configuration document described in
// spec.md §6: a single JSON file mapping uid -> machine descriptor,
// read fresh on every resolution and written atomically. Grounded on
// original_source/connection/config.py's add/delete/get_machine_config,
// replacing its read-modify-write-in-place with a temp-file-then-rename
// sequence so concurrent readers never observe a partial document.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens (creating if absent) the JSON document at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeAll(map[string]Machine{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) readAll() (map[string]Machine, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, faults.Wrap(faults.InvalidDescriptor, "read machine config", err)
	}
	if len(data) == 0 {
		return map[string]Machine{}, nil
	}
	var all map[string]Machine
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, faults.Wrap(faults.InvalidDescriptor, "parse machine config", err)
	}
	return all, nil
}

// writeAll serializes the whole document to a temp file in the same
// directory, fsyncs it, then renames it over the target — rename is atomic on
// the same filesystem, so a reader never sees a half-written document.
func (s *Store) writeAll(all map[string]Machine) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return faults.Wrap(faults.InvalidDescriptor, "marshal machine config", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".machine-config-*.tmp")
	if err != nil {
		return faults.Wrap(faults.InvalidDescriptor, "create temp machine config", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return faults.Wrap(faults.InvalidDescriptor, "write temp machine config", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return faults.Wrap(faults.InvalidDescriptor, "sync temp machine config", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return faults.Wrap(faults.InvalidDescriptor, "close temp machine config", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return faults.Wrap(faults.InvalidDescriptor, "rename machine config", err)
	}
	return nil
}

// Get returns the machine descriptor for uid, or UnknownMachine.
func (s *Store) Get(uid string) (Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return Machine{}, err
	}
	m, ok := all[uid]
	if !ok {
		return Machine{}, faults.New(faults.UnknownMachine, uid)
	}
	return m, nil
}

// All returns every registered machine, keyed by uid.
func (s *Store) All() (map[string]Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// Add inserts or replaces the machine descriptor for uid.
func (s *Store) Add(uid string, m Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[uid] = m
	return s.writeAll(all)
}

// Delete removes uid from the document, returning the removed machine
// descriptor if one existed.
func (s *Store) Delete(uid string) (Machine, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return Machine{}, false, err
	}
	m, ok := all[uid]
	if !ok {
		return Machine{}, false, nil
	}
	delete(all, uid)
	if err := s.writeAll(all); err != nil {
		return Machine{}, false, err
	}
	return m, true, nil
}
