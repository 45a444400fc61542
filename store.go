package fymodules

import (
	"context"
	"maps"
	"sync"
)

// Record is the persisted layout of one module's runtime state.
type Record struct {
	Enabled   bool           `json:"enabled" yaml:"enabled" toml:"enabled"`
	Settings  map[string]any `json:"settings,omitempty" yaml:"settings,omitempty" toml:"settings,omitempty"`
	LastError string         `json:"lastError,omitempty" yaml:"lastError,omitempty" toml:"lastError,omitempty"`

	// LastErrorPhase is the hook phase LastError came from. Records written
	// before phases were stored leave it empty.
	LastErrorPhase string `json:"lastErrorPhase,omitempty" yaml:"lastErrorPhase,omitempty" toml:"lastErrorPhase,omitempty"`
}

// Store persists module records keyed by module id. Put must be atomic per
// key; no multi-key transaction is assumed.
type Store interface {
	// Get returns the record for id. The boolean is false when nothing has
	// been stored for id yet.
	Get(ctx context.Context, id string) (Record, bool, error)

	// Put replaces the record for id.
	Put(ctx context.Context, id string, rec Record) error
}

// MemoryStore is a Store kept in process memory. Records are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *MemoryStore) Put(_ context.Context, id string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec.Clone()
	return nil
}

// Clone returns a copy of the record with its own settings map.
func (r Record) Clone() Record {
	if r.Settings != nil {
		r.Settings = maps.Clone(r.Settings)
	}
	return r
}
