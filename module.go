// Package fymodules implements the module registry and lifecycle manager of the
// Fearless You coaching-certification platform.
//
// The platform is built from optional feature units ("modules") such as the
// coach dashboards, the hour tracker or the event-calendar bridge. Each module
// declares static metadata in a Descriptor, supplies its lifecycle hooks as a
// Module value, and is registered once at process start:
//
//	reg := fymodules.NewRegistry(store, logger)
//	reg.Register(hourTracker.Descriptor(), hourTracker)
//	mgr := fymodules.NewManager(reg, authorizer, logger)
//	res, err := mgr.EnableModule(ctx, "hour-tracker", actor)
//
// Enabling and disabling go through the Manager, which enforces the
// dependency constraints between modules, persists the new state through the
// Store and quarantines modules whose activation fails.
package fymodules

import "context"

// Module is the capability interface every feature unit implements. The core
// never inspects what a hook does; it only records whether it succeeded.
type Module interface {
	// OnActivate runs when the module is enabled. An error (or panic) leaves
	// the module enabled but flagged with a LastError.
	OnActivate(ctx context.Context) error

	// OnDeactivate runs after the module has been disabled. Failures are
	// logged and never block the disable.
	OnDeactivate(ctx context.Context) error

	// SettingsSchema returns the settings the module reads, with defaults.
	SettingsSchema() []Setting
}

// Initializer is implemented by modules that need per-process initialization.
// Init runs for every enabled module when the process boots, and right after
// OnActivate when the module is enabled. A module without Init counts as
// loaded as soon as it is enabled.
type Initializer interface {
	Init(ctx context.Context) error
}

// Hooks adapts plain functions to the Module interface. Nil functions are
// no-ops.
type Hooks struct {
	Activate   func(ctx context.Context) error
	Deactivate func(ctx context.Context) error
	Initialize func(ctx context.Context) error
	Schema     []Setting
}

func (h Hooks) OnActivate(ctx context.Context) error {
	if h.Activate == nil {
		return nil
	}
	return h.Activate(ctx)
}

func (h Hooks) OnDeactivate(ctx context.Context) error {
	if h.Deactivate == nil {
		return nil
	}
	return h.Deactivate(ctx)
}

func (h Hooks) SettingsSchema() []Setting {
	return h.Schema
}

func (h Hooks) Init(ctx context.Context) error {
	if h.Initialize == nil {
		return nil
	}
	return h.Initialize(ctx)
}
