package fymodules

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// State is the runtime state of one registered module.
type State struct {
	Enabled bool `json:"enabled"`

	// Loaded is true only when the module's initialization succeeded during
	// the current process lifetime. It is never persisted.
	Loaded bool `json:"loaded"`

	// LastError is set while the module is enabled but broken.
	LastError *ActivationError `json:"lastError,omitempty"`

	Settings Settings `json:"settings"`

	// RejectedSettings lists stored keys that were dropped or replaced by
	// their default while resolving Settings.
	RejectedSettings []string `json:"rejectedSettings,omitempty"`
}

// Errored reports whether the module is enabled but quarantined.
func (s State) Errored() bool {
	return s.Enabled && s.LastError != nil
}

type entry struct {
	desc   Descriptor
	module Module

	// fetched is true once rec reflects the store.
	fetched bool
	rec     Record

	loaded  bool
	lastErr *ActivationError
}

// Registry holds every known module descriptor with its runtime state. It is
// the source of truth for what modules exist and whether they are enabled.
//
// Descriptors are registered once at process start. Persisted state is read
// from the Store lazily on first access and re-read by Load, which callers
// run at the start of each request.
type Registry struct {
	mu      sync.RWMutex
	store   Store
	logger  Logger
	order   []string
	entries map[string]*entry
}

// NewRegistry creates an empty registry backed by store. A nil store falls
// back to a MemoryStore; a nil logger discards output.
func NewRegistry(store Store, logger Logger) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Registry{
		store:   store,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Register inserts or replaces a module. Replacing keeps the module's
// position in registration order and its persisted state.
func (r *Registry) Register(d Descriptor, m Module) {
	if m == nil {
		m = Hooks{}
	}
	if len(d.DefaultSettings) == 0 {
		d.DefaultSettings = m.SettingsSchema()
	}
	d = d.normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[d.ID]; ok {
		e.desc = d
		e.module = m
		e.loaded = false
		r.logger.Debug("Replaced module descriptor", "module", d.ID)
		return
	}

	r.entries[d.ID] = &entry{desc: d, module: m}
	r.order = append(r.order, d.ID)
	r.logger.Debug("Registered module", "module", d.ID, "dependencies", d.Dependencies)
}

// Get returns the descriptor registered under id.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.desc, nil
}

// Module returns the hooks registered under id.
func (r *Registry) Module(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.module, true
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// IsEnabled reports the persisted enabled flag of id. Unknown ids, and ids
// whose record cannot be read, report false.
func (r *Registry) IsEnabled(id string) bool {
	enabled, err := r.Enabled(context.Background(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Failed to read module state", "module", id, "error", err)
		}
		return false
	}
	return enabled
}

// Enabled reports the persisted enabled flag of id, reading the store with
// ctx when the record has not been fetched yet.
func (r *Registry) Enabled(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.fetchLocked(ctx, e); err != nil {
		return false, err
	}
	return e.rec.Enabled, nil
}

// SetEnabled writes the enabled flag of id and persists it. It performs no
// dependency validation; the Manager owns that.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, func(rec *Record) {
		rec.Enabled = enabled
	})
}

// SetSettings persists the raw settings overrides of id.
func (r *Registry) SetSettings(ctx context.Context, id string, values map[string]any) error {
	return r.update(ctx, id, func(rec *Record) {
		rec.Settings = maps.Clone(values)
	})
}

// SetLastError records (or with nil clears) the activation error of id and
// persists its message and phase.
func (r *Registry) SetLastError(ctx context.Context, id string, actErr *ActivationError) error {
	err := r.update(ctx, id, func(rec *Record) {
		rec.LastError, rec.LastErrorPhase = "", ""
		if actErr != nil {
			rec.LastError = actErr.Message
			rec.LastErrorPhase = actErr.Phase
		}
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[id].lastErr = actErr
	r.mu.Unlock()
	return nil
}

// MarkLoaded sets the process-local loaded flag of id.
func (r *Registry) MarkLoaded(id string, loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.loaded = loaded
	}
}

// State returns the resolved runtime state of id.
func (r *Registry) State(ctx context.Context, id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.fetchLocked(ctx, e); err != nil {
		return State{}, err
	}

	settings, rejected := WithDefaults(e.desc.DefaultSettings, e.rec.Settings)
	return State{
		Enabled:          e.rec.Enabled,
		Loaded:           e.rec.Enabled && e.loaded,
		LastError:        e.lastErr,
		Settings:         settings,
		RejectedSettings: rejected,
	}, nil
}

// Load re-reads the persisted state of every registered module. The
// process-local loaded flags are kept.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		e := r.entries[id]
		e.fetched = false
		if err := r.fetchLocked(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// fetchLocked reads e's record if it has not been read yet. The caller must
// hold the write lock.
func (r *Registry) fetchLocked(ctx context.Context, e *entry) error {
	if e.fetched {
		return nil
	}
	rec, _, err := r.store.Get(ctx, e.desc.ID)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStore, e.desc.ID, err)
	}
	e.rec = rec
	e.fetched = true

	switch {
	case rec.LastError == "":
		e.lastErr = nil
	case e.lastErr == nil || e.lastErr.Message != rec.LastError || e.lastErr.Phase != rec.LastErrorPhase:
		e.lastErr = &ActivationError{Module: e.desc.ID, Phase: rec.LastErrorPhase, Message: rec.LastError}
	}
	return nil
}

// update applies mutate to id's record and persists it. The in-memory record
// only changes when the store accepted the write.
func (r *Registry) update(ctx context.Context, id string, mutate func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.fetchLocked(ctx, e); err != nil {
		return err
	}

	next := e.rec.Clone()
	mutate(&next)
	if err := r.store.Put(ctx, id, next); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStore, id, err)
	}
	e.rec = next
	return nil
}

// ids returns the registered ids in registration order.
func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}
