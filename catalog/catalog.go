// Package catalog declares the built-in modules of the Fearless You platform.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vapvarun/fymodules"
)

// Built-in module ids.
const (
	RoleManager   = "role-manager"
	LoginSecurity = "login-security"
	Dashboards    = "dashboards"
	HourTracker   = "hour-tracker"
	Checklists    = "checklists"
	Accessibility = "accessibility"
	EventCalendar = "event-calendar"
	LMSProgress   = "lms-progress"
)

// External host plugins some modules bridge to.
const (
	PluginEventsCalendar = "the-events-calendar"
	PluginLearnDash      = "learndash"
)

// ErrPluginMissing is the activation failure of a module whose host plugin
// is not installed.
var ErrPluginMissing = errors.New("required external plugin is not installed")

// PluginProbe reports whether a host plugin is installed and active.
type PluginProbe interface {
	Installed(ctx context.Context, plugin string) (bool, error)
}

// StaticProbe is a PluginProbe over a fixed set of installed plugins.
type StaticProbe map[string]bool

func (p StaticProbe) Installed(_ context.Context, plugin string) (bool, error) {
	return p[plugin], nil
}

// Entry pairs a descriptor with its hooks.
type Entry struct {
	Descriptor fymodules.Descriptor
	Module     *Feature
}

// Builtin returns the platform's modules in registration order, dependencies
// first.
func Builtin(probe PluginProbe, logger fymodules.Logger) []Entry {
	if probe == nil {
		probe = StaticProbe{}
	}
	if logger == nil {
		logger = fymodules.NopLogger()
	}

	defs := []struct {
		desc   fymodules.Descriptor
		plugin string
	}{
		{desc: fymodules.Descriptor{
			ID:                RoleManager,
			Name:              "Role Manager",
			Description:       "Coach, mentor and student roles with their capabilities.",
			Category:          fymodules.CategoryCore,
			SecuritySensitive: true,
			HasAdminPage:      true,
			DefaultSettings:   roleManagerSettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:                LoginSecurity,
			Name:              "Login Security",
			Description:       "Lockout after repeated failed logins.",
			Category:          fymodules.CategorySecurity,
			Dependencies:      []string{RoleManager},
			SecuritySensitive: true,
			DefaultSettings:   loginSecuritySettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:              Dashboards,
			Name:            "Dashboards",
			Description:     "Role-specific dashboards for coaches, mentors and students.",
			Category:        fymodules.CategoryDashboards,
			Dependencies:    []string{RoleManager},
			HasAdminPage:    true,
			DefaultSettings: dashboardSettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:              HourTracker,
			Name:            "Hour Tracker",
			Description:     "Logs coaching hours toward certification targets.",
			Category:        fymodules.CategoryTracking,
			Dependencies:    []string{Dashboards},
			HasAdminPage:    true,
			DefaultSettings: hourTrackerSettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:              Checklists,
			Name:            "Checklists",
			Description:     "Certification progress checklists.",
			Category:        fymodules.CategoryTracking,
			Dependencies:    []string{Dashboards},
			DefaultSettings: checklistSettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:              Accessibility,
			Name:            "Accessibility",
			Description:     "Font scaling and contrast controls.",
			Category:        fymodules.CategoryAccessibility,
			DefaultSettings: accessibilitySettings(),
		}},
		{desc: fymodules.Descriptor{
			ID:                     EventCalendar,
			Name:                   "Event Calendar",
			Description:            "Shows program events from the host calendar plugin.",
			Category:               fymodules.CategoryIntegrations,
			Dependencies:           []string{Dashboards},
			RequiresExternalPlugin: true,
			DefaultSettings:        eventCalendarSettings(),
		}, plugin: PluginEventsCalendar},
		{desc: fymodules.Descriptor{
			ID:                     LMSProgress,
			Name:                   "LMS Progress",
			Description:            "Course progress from the learning-management plugin.",
			Category:               fymodules.CategoryIntegrations,
			Dependencies:           []string{RoleManager},
			RequiresExternalPlugin: true,
			DefaultSettings:        lmsProgressSettings(),
		}, plugin: PluginLearnDash},
	}

	entries := make([]Entry, 0, len(defs))
	for _, def := range defs {
		def.desc.Version = Version
		entries = append(entries, Entry{
			Descriptor: def.desc,
			Module: &Feature{
				id:     def.desc.ID,
				plugin: def.plugin,
				probe:  probe,
				logger: logger,
				schema: def.desc.DefaultSettings,
			},
		})
	}
	return entries
}

// Version is reported by every built-in module.
const Version = "1.4.0"

// Register adds every built-in module to reg and returns their descriptors.
func Register(reg *fymodules.Registry, probe PluginProbe, logger fymodules.Logger) []fymodules.Descriptor {
	entries := Builtin(probe, logger)
	out := make([]fymodules.Descriptor, 0, len(entries))
	for _, e := range entries {
		reg.Register(e.Descriptor, e.Module)
		out = append(out, e.Descriptor)
	}
	return out
}

// Feature is the Module implementation shared by the built-in modules.
// Modules bridging to a host plugin fail activation and initialization while
// the plugin is missing.
type Feature struct {
	id     string
	plugin string
	probe  PluginProbe
	logger fymodules.Logger
	schema []fymodules.Setting

	active atomic.Bool
}

// Active reports whether the feature is currently running in this process.
func (f *Feature) Active() bool {
	return f.active.Load()
}

func (f *Feature) OnActivate(ctx context.Context) error {
	if err := f.requirePlugin(ctx); err != nil {
		return err
	}
	f.logger.Info("Feature activated", "module", f.id)
	return nil
}

func (f *Feature) Init(ctx context.Context) error {
	if err := f.requirePlugin(ctx); err != nil {
		return err
	}
	f.active.Store(true)
	return nil
}

func (f *Feature) OnDeactivate(context.Context) error {
	f.active.Store(false)
	f.logger.Info("Feature deactivated", "module", f.id)
	return nil
}

func (f *Feature) SettingsSchema() []fymodules.Setting {
	return f.schema
}

func (f *Feature) requirePlugin(ctx context.Context) error {
	if f.plugin == "" {
		return nil
	}
	ok, err := f.probe.Installed(ctx, f.plugin)
	if err != nil {
		return fmt.Errorf("probe plugin %s: %w", f.plugin, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginMissing, f.plugin)
	}
	return nil
}
