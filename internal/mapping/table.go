package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID = errors.New("duplicate mapping id")
	ErrNotFound    = errors.New("mapping not found")
)

// Profile is the on-disk form of a mapping table.
type Profile struct {
	Mappings []Entry `yaml:"mappings" json:"mappings"`
}

// Table is the ordered list of mapping entries. Readers and writers share
// one RWMutex so a resolver never sees a partially replaced list.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	version uint64
}

// NewTable returns an empty table.
func NewTable() *Table { return &Table{} }

// Add appends e, assigning a random id when e.ID is empty.
func (t *Table) Add(e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, fmt.Errorf("mapping %q: %w", e.ID, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for _, x := range t.entries {
		if x.ID == e.ID {
			return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
	}
	t.entries = append(t.entries, e)
	t.version++
	return e, nil
}

// Remove deletes the entry with the given id.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.entries {
		if x.ID == id {
			next := make([]Entry, 0, len(t.entries)-1)
			next = append(next, t.entries[:i]...)
			t.entries = append(next, t.entries[i+1:]...)
			t.version++
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns a copy of the entries in insertion order.
func (t *Table) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Version increments on every change.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// View calls fn with the current entries under the read lock. fn must not
// retain or modify the slice.
func (t *Table) View(fn func(entries []Entry)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.entries)
}

// Replace swaps in a whole new list. Nothing changes if any entry is invalid.
func (t *Table) Replace(entries []Entry) error {
	next, err := prepare(entries)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.entries = next
	t.version++
	t.mu.Unlock()
	return nil
}

func prepare(entries []Entry) ([]Entry, error) {
	next := make([]Entry, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("mappings[%d]: %w: %s", i, ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
		next[i] = e
	}
	return next, nil
}

// DecodeProfile parses a YAML (or JSON) profile document: either an object
// with a mappings list or a bare list of entries. Unknown fields are
// rejected.
func DecodeProfile(b []byte) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if len(root.Content) == 1 && root.Content[0].Kind == yaml.SequenceNode {
		var entries []Entry
		if err := root.Content[0].Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		return entries, nil
	}

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return p.Mappings, nil
}

// LoadFile replaces the table with the profile at path. On any error the
// current entries are kept.
func (t *Table) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	entries, err := DecodeProfile(b)
	if err != nil {
		return err
	}
	return t.Replace(entries)
}

// SaveFile writes the current entries to path via a temporary file and a
// rename, so readers never see a partial profile.
func (t *Table) SaveFile(path string) error {
	b, err := yaml.Marshal(Profile{Mappings: t.List()})
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename profile: %w", err)
	}
	return nil
}
