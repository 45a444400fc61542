package fymodules

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Result describes the outcome of a successful lifecycle operation.
type Result struct {
	Module  string `json:"module"`
	Enabled bool   `json:"enabled"`

	// Changed is false when the operation was a no-op, for example enabling
	// a module that is already enabled.
	Changed bool `json:"changed"`

	// Warning is set when the module's own hook failed. The operation still
	// succeeded; the module is quarantined for operator review.
	Warning *ActivationError `json:"warning,omitempty"`
}

// ModuleStatus is the read-only projection returned by listings.
type ModuleStatus struct {
	Descriptor
	State

	// Dependents lists registered modules that depend on this one directly.
	Dependents []string `json:"dependents,omitempty"`

	// MissingDependencies lists dependencies that are not enabled.
	MissingDependencies []string `json:"missingDependencies,omitempty"`
}

// BootReport summarizes a Boot run.
type BootReport struct {
	Loaded  []string `json:"loaded"`
	Errored []string `json:"errored"`
}

// Manager is the only component that changes persisted module state. It
// owns the enable/disable protocol and the quarantine of failing modules.
//
// Dependency and permission failures are rejected before any mutation. Hook
// failures never fail the operation; they are recorded on the module.
//
// Mutations are serialized within the process. Two processes sharing a
// store can still race between the dependency check and the write; toggles
// are rare administrative actions and this window is accepted.
type Manager struct {
	mu       sync.Mutex
	registry *Registry
	resolver *Resolver
	authz    Authorizer
	events   Subject
	logger   Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEvents publishes lifecycle events to subject.
func WithEvents(subject Subject) ManagerOption {
	return func(m *Manager) {
		m.events = subject
	}
}

// NewManager creates a Manager over registry. A nil authorizer denies every
// actor.
func NewManager(registry *Registry, authz Authorizer, logger Logger, opts ...ManagerOption) *Manager {
	if authz == nil {
		authz = AuthorizerFunc(func(context.Context, Actor, string) (bool, error) { return false, nil })
	}
	if logger == nil {
		logger = nopLogger{}
	}
	m := &Manager{
		registry: registry,
		resolver: NewResolver(registry),
		authz:    authz,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry the manager operates on.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Resolver returns the dependency resolver over the manager's registry.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// EnableModule enables id on behalf of actor.
//
// The module must exist, actor must be allowed to manage it and every
// dependency must be enabled; otherwise nothing changes. The enabled flag is
// persisted before the module's hooks run, and a failing hook leaves the
// module enabled with a LastError and a warning on the result. Enabling a
// healthy enabled module is a no-op; enabling a quarantined one retries it.
func (m *Manager) EnableModule(ctx context.Context, id string, actor Actor) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepare(ctx, id, actor); err != nil {
		return Result{}, err
	}

	state, err := m.registry.State(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if state.Errored() {
		return m.retry(ctx, id)
	}
	if state.Enabled {
		m.logger.Debug("Module already enabled", "module", id)
		return Result{Module: id, Enabled: true}, nil
	}

	verdict, err := m.resolver.CanEnable(id)
	if err != nil {
		return Result{}, err
	}
	if !verdict.Allowed {
		depErr := verdict.Err(id, OpEnable)
		m.logger.Info("Module enable rejected", "module", id, "actor", actor.ID, "missing", verdict.Missing)
		m.emit(ctx, EventTypeModuleToggleRejected, id, map[string]any{
			"module":  id,
			"actor":   actor.ID,
			"op":      OpEnable,
			"missing": verdict.Missing,
		})
		return Result{}, depErr
	}

	if err := m.registry.SetEnabled(ctx, id, true); err != nil {
		return Result{}, err
	}
	m.logger.Info("Module enabled", "module", id, "actor", actor.ID)

	warning := m.load(ctx, id, true)
	m.emit(ctx, EventTypeModuleEnabled, id, map[string]any{
		"module":  id,
		"actor":   actor.ID,
		"healthy": warning == nil,
	})

	return Result{Module: id, Enabled: true, Changed: true, Warning: warning}, nil
}

// DisableModule disables id on behalf of actor.
//
// The module must exist, actor must be allowed to manage it and no enabled
// module may depend on it; otherwise nothing changes. Disabling clears any
// recorded activation error. The deactivation hook runs after the state is
// persisted and its failures are only logged.
// Disabling a disabled module is a no-op.
func (m *Manager) DisableModule(ctx context.Context, id string, actor Actor) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepare(ctx, id, actor); err != nil {
		return Result{}, err
	}

	enabled, err := m.registry.Enabled(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !enabled {
		m.logger.Debug("Module already disabled", "module", id)
		return Result{Module: id}, nil
	}

	verdict, err := m.resolver.CanDisable(id)
	if err != nil {
		return Result{}, err
	}
	if !verdict.Allowed {
		m.logger.Info("Module disable rejected", "module", id, "actor", actor.ID, "dependents", verdict.Dependents)
		m.emit(ctx, EventTypeModuleToggleRejected, id, map[string]any{
			"module":     id,
			"actor":      actor.ID,
			"op":         OpDisable,
			"dependents": verdict.Dependents,
		})
		return Result{}, verdict.Err(id, OpDisable)
	}

	if err := m.registry.SetEnabled(ctx, id, false); err != nil {
		return Result{}, err
	}
	m.registry.MarkLoaded(id, false)
	if err := m.registry.SetLastError(ctx, id, nil); err != nil {
		m.logger.Error("Failed to clear module error", "module", id, "error", err)
	}
	m.logger.Info("Module disabled", "module", id, "actor", actor.ID)

	if mod, ok := m.registry.Module(id); ok {
		if err := callHook(ctx, mod.OnDeactivate); err != nil {
			m.logger.Error("Module deactivation hook failed", "module", id, "error", err)
		}
	}

	m.emit(ctx, EventTypeModuleDisabled, id, map[string]any{
		"module": id,
		"actor":  actor.ID,
	})
	return Result{Module: id, Changed: true}, nil
}

// ListModules returns the status of every module actor may manage, in
// registration order. It never mutates state.
func (m *Manager) ListModules(ctx context.Context, actor Actor) ([]ModuleStatus, error) {
	if err := m.registry.Load(ctx); err != nil {
		return nil, err
	}

	var out []ModuleStatus
	for _, d := range m.registry.All() {
		ok, err := m.authz.CanManage(ctx, actor, d.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrAuthorization, d.ID, err)
		}
		if !ok {
			continue
		}
		st, err := m.status(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ModuleStatus returns the status of a single module.
func (m *Manager) ModuleStatus(ctx context.Context, id string, actor Actor) (ModuleStatus, error) {
	if err := m.prepare(ctx, id, actor); err != nil {
		return ModuleStatus{}, err
	}
	d, err := m.registry.Get(id)
	if err != nil {
		return ModuleStatus{}, err
	}
	return m.status(ctx, d)
}

// RetryModule re-runs the hooks of an enabled module that is quarantined.
// Healthy or disabled modules are left alone.
func (m *Manager) RetryModule(ctx context.Context, id string, actor Actor) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepare(ctx, id, actor); err != nil {
		return Result{}, err
	}
	return m.retry(ctx, id)
}

// RetryErrored re-runs the hooks of every quarantined module in dependency
// order. It is meant for trusted background callers and performs no
// authorization.
func (m *Manager) RetryErrored(ctx context.Context) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Load(ctx); err != nil {
		return nil, err
	}

	var errored []string
	for _, id := range m.registry.ids() {
		st, err := m.registry.State(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Errored() {
			errored = append(errored, id)
		}
	}

	order, err := m.resolver.ActivationOrder(errored)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		res, err := m.retry(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Boot initializes every enabled module for this process, dependencies
// first. Modules whose dependencies are no longer enabled are quarantined
// instead of initialized.
func (m *Manager) Boot(ctx context.Context) (BootReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report BootReport
	if err := m.registry.Load(ctx); err != nil {
		return report, err
	}

	var enabled []string
	for _, id := range m.registry.ids() {
		ok, err := m.registry.Enabled(ctx, id)
		if err != nil {
			return report, err
		}
		if ok {
			enabled = append(enabled, id)
		}
	}

	order, err := m.resolver.ActivationOrder(enabled)
	if err != nil {
		m.logger.Error("Cannot order enabled modules", "error", err)
		return report, err
	}
	m.logger.Debug("Module boot order", "order", order)

	for _, id := range order {
		st, err := m.registry.State(ctx, id)
		if err != nil {
			return report, err
		}
		verdict, err := m.resolver.CanEnable(id)
		if err != nil {
			return report, err
		}
		if !verdict.Allowed {
			m.quarantine(ctx, id, dependencyFailure(id, st, verdict.Missing))
			report.Errored = append(report.Errored, id)
			continue
		}

		// A module quarantined before its activation hook succeeded is
		// activated again; the others only need this process's Init.
		if actErr := m.load(ctx, id, needsActivation(st)); actErr != nil {
			report.Errored = append(report.Errored, id)
			continue
		}
		report.Loaded = append(report.Loaded, id)
	}

	m.logger.Info("Modules booted", "loaded", len(report.Loaded), "errored", len(report.Errored))
	return report, nil
}

// UpdateSettings validates values against the module's settings schema and
// persists them merged over the current settings.
func (m *Manager) UpdateSettings(ctx context.Context, id string, actor Actor, values map[string]any) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepare(ctx, id, actor); err != nil {
		return Settings{}, err
	}
	d, err := m.registry.Get(id)
	if err != nil {
		return Settings{}, err
	}
	if err := ValidateSettings(id, d.DefaultSettings, values); err != nil {
		return Settings{}, err
	}

	current, err := m.registry.State(ctx, id)
	if err != nil {
		return Settings{}, err
	}
	merged := current.Settings.Map()
	maps.Copy(merged, values)

	resolved, rejected := WithDefaults(d.DefaultSettings, merged)
	if len(rejected) > 0 {
		return Settings{}, fmt.Errorf("%w: %s: cannot convert %v", ErrInvalidSettings, id, rejected)
	}
	if err := m.registry.SetSettings(ctx, id, resolved.Map()); err != nil {
		return Settings{}, err
	}

	m.logger.Info("Module settings updated", "module", id, "actor", actor.ID)
	m.emit(ctx, EventTypeSettingsUpdated, id, map[string]any{
		"module": id,
		"actor":  actor.ID,
		"keys":   keysOf(values),
	})
	return resolved, nil
}

// ResetSettings drops every stored override of id so defaults apply again.
func (m *Manager) ResetSettings(ctx context.Context, id string, actor Actor) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepare(ctx, id, actor); err != nil {
		return Settings{}, err
	}
	if err := m.registry.SetSettings(ctx, id, nil); err != nil {
		return Settings{}, err
	}
	st, err := m.registry.State(ctx, id)
	if err != nil {
		return Settings{}, err
	}
	m.logger.Info("Module settings reset", "module", id, "actor", actor.ID)
	m.emit(ctx, EventTypeSettingsUpdated, id, map[string]any{
		"module": id,
		"actor":  actor.ID,
		"reset":  true,
	})
	return st.Settings, nil
}

// prepare reloads persisted state and runs the lookup and permission checks
// shared by every operation on a single module.
func (m *Manager) prepare(ctx context.Context, id string, actor Actor) error {
	if err := m.registry.Load(ctx); err != nil {
		return err
	}
	if _, err := m.registry.Get(id); err != nil {
		return err
	}

	ok, err := m.authz.CanManage(ctx, actor, id)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAuthorization, id, err)
	}
	if !ok {
		m.logger.Warn("Module management denied", "module", id, "actor", actor.ID)
		return fmt.Errorf("%w: %s", ErrForbidden, id)
	}
	return nil
}

func (m *Manager) status(ctx context.Context, d Descriptor) (ModuleStatus, error) {
	st, err := m.registry.State(ctx, d.ID)
	if err != nil {
		return ModuleStatus{}, err
	}
	verdict, err := m.resolver.CanEnable(d.ID)
	if err != nil {
		return ModuleStatus{}, err
	}
	return ModuleStatus{
		Descriptor:          d,
		State:               st,
		Dependents:          m.resolver.DependentsOf(d.ID),
		MissingDependencies: verdict.Missing,
	}, nil
}

func (m *Manager) retry(ctx context.Context, id string) (Result, error) {
	st, err := m.registry.State(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !st.Errored() {
		return Result{Module: id, Enabled: st.Enabled}, nil
	}

	verdict, err := m.resolver.CanEnable(id)
	if err != nil {
		return Result{}, err
	}
	if !verdict.Allowed {
		actErr := dependencyFailure(id, st, verdict.Missing)
		m.quarantine(ctx, id, actErr)
		return Result{Module: id, Enabled: true, Warning: actErr}, nil
	}

	warning := m.load(ctx, id, needsActivation(st))
	return Result{Module: id, Enabled: true, Changed: warning == nil, Warning: warning}, nil
}

// needsActivation reports whether st is quarantined before its activation
// hook succeeded. Errors restored without a phase count as activation
// failures.
func needsActivation(st State) bool {
	if !st.Errored() {
		return false
	}
	return st.LastError.Phase != PhaseInit && st.LastError.Phase != PhaseBoot
}

// dependencyFailure is the quarantine error of a module whose dependencies
// are not enabled. It keeps the activate phase while activation is still
// outstanding so a later retry runs the hook.
func dependencyFailure(id string, st State, missing []string) *ActivationError {
	phase := PhaseBoot
	if needsActivation(st) {
		phase = PhaseActivate
	}
	return newActivationError(id, phase, fmt.Errorf("%w: %v", ErrDependencyUnsatisfied, missing))
}

// load runs the module's activation hook (when activate is set) followed by
// its initializer, and records the outcome. It returns the failure, if any.
func (m *Manager) load(ctx context.Context, id string, activate bool) *ActivationError {
	mod, ok := m.registry.Module(id)
	if !ok {
		return nil
	}

	var actErr *ActivationError
	if activate {
		if err := callHook(ctx, mod.OnActivate); err != nil {
			actErr = newActivationError(id, PhaseActivate, err)
		}
	}
	if actErr == nil {
		if init, ok := mod.(Initializer); ok {
			if err := callHook(ctx, init.Init); err != nil {
				actErr = newActivationError(id, PhaseInit, err)
			}
		}
	}

	if actErr != nil {
		m.quarantine(ctx, id, actErr)
		return actErr
	}

	m.registry.MarkLoaded(id, true)
	if st, err := m.registry.State(ctx, id); err == nil && st.LastError != nil {
		if err := m.registry.SetLastError(ctx, id, nil); err != nil {
			m.logger.Error("Failed to clear module error", "module", id, "error", err)
		}
		m.logger.Info("Module recovered", "module", id)
		m.emit(ctx, EventTypeModuleRecovered, id, map[string]any{"module": id})
	}
	return nil
}

// quarantine marks id as enabled-but-broken.
func (m *Manager) quarantine(ctx context.Context, id string, actErr *ActivationError) {
	m.registry.MarkLoaded(id, false)
	if err := m.registry.SetLastError(ctx, id, actErr); err != nil {
		m.logger.Error("Failed to record module error", "module", id, "error", err)
	}
	m.logger.Warn("Module quarantined", "module", id, "phase", actErr.Phase, "error", actErr.Message)
	m.emit(ctx, EventTypeModuleActivationFailed, id, actErr)
}

func (m *Manager) emit(ctx context.Context, eventType, id string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.NotifyObservers(ctx, NewCloudEvent(eventType, id, data)); err != nil {
		m.logger.Debug("Failed to deliver lifecycle event", "module", id, "eventType", eventType, "error", err)
	}
}

// callHook runs hook, converting a panic into an error.
func callHook(ctx context.Context, hook func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, r)
		}
	}()
	return hook(ctx)
}

func keysOf(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}
