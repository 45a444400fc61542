package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vapvarun/fymodules"
)

var admin = fymodules.Actor{ID: "admin", Roles: []string{"administrator"}}

func newManager(t *testing.T, probe PluginProbe) *fymodules.Manager {
	t.Helper()
	reg := fymodules.NewRegistry(nil, nil)
	descs := Register(reg, probe, nil)
	authz := fymodules.NewCapabilityAuthorizer(descs, map[string][]string{
		"administrator": {fymodules.CapabilityManageModules, fymodules.CapabilityManageSecurity},
		"coach_admin":   {fymodules.CapabilityManageModules},
	})
	return fymodules.NewManager(reg, authz, nil)
}

func TestBuiltin_GraphIsOrderedAndAcyclic(t *testing.T) {
	entries := Builtin(nil, nil)
	require.Len(t, entries, 8)

	seen := map[string]bool{}
	for _, e := range entries {
		for _, dep := range e.Descriptor.Dependencies {
			assert.True(t, seen[dep], "%s is declared before its dependency %s", e.Descriptor.ID, dep)
		}
		assert.False(t, seen[e.Descriptor.ID], "duplicate id %s", e.Descriptor.ID)
		seen[e.Descriptor.ID] = true
		assert.Equal(t, Version, e.Descriptor.Version)
		assert.NotEmpty(t, e.Descriptor.DefaultSettings)
		assert.Equal(t, e.Descriptor.RequiresExternalPlugin, e.Module.plugin != "")
	}

	reg := fymodules.NewRegistry(nil, nil)
	Register(reg, nil, nil)
	ids := make([]string, 0, len(entries))
	for _, d := range reg.All() {
		ids = append(ids, d.ID)
	}
	order, err := fymodules.NewResolver(reg).ActivationOrder(ids)
	require.NoError(t, err)
	assert.Equal(t, ids, order)
}

func TestDefaultSettingsMatchTheirSchema(t *testing.T) {
	for _, e := range Builtin(nil, nil) {
		values := map[string]any{}
		for _, s := range e.Descriptor.DefaultSettings {
			values[s.Key] = s.Default
		}
		assert.NoError(t, fymodules.ValidateSettings(e.Descriptor.ID, e.Descriptor.DefaultSettings, values), e.Descriptor.ID)
	}
}

func TestSecuritySensitiveModulesNeedSecurityCapability(t *testing.T) {
	mgr := newManager(t, nil)
	ctx := context.Background()
	coach := fymodules.Actor{ID: "coach", Roles: []string{"coach_admin"}}

	_, err := mgr.EnableModule(ctx, RoleManager, coach)
	require.ErrorIs(t, err, fymodules.ErrForbidden)

	_, err = mgr.EnableModule(ctx, RoleManager, admin)
	require.NoError(t, err)
	_, err = mgr.EnableModule(ctx, Dashboards, coach)
	require.NoError(t, err)

	list, err := mgr.ListModules(ctx, coach)
	require.NoError(t, err)
	for _, st := range list {
		assert.False(t, st.SecuritySensitive, "coach admins do not see %s", st.ID)
	}
}

func TestExternalPluginMissingQuarantinesModule(t *testing.T) {
	ctx := context.Background()
	probe := StaticProbe{PluginLearnDash: true}
	mgr := newManager(t, probe)

	_, err := mgr.EnableModule(ctx, RoleManager, admin)
	require.NoError(t, err)
	_, err = mgr.EnableModule(ctx, Dashboards, admin)
	require.NoError(t, err)

	res, err := mgr.EnableModule(ctx, EventCalendar, admin)
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.ErrorIs(t, res.Warning, ErrPluginMissing)
	assert.True(t, mgr.Registry().IsEnabled(EventCalendar))

	res, err = mgr.EnableModule(ctx, LMSProgress, admin)
	require.NoError(t, err)
	assert.Nil(t, res.Warning)

	// Installing the plugin lets the retry clear the quarantine.
	probe[PluginEventsCalendar] = true
	results, err := mgr.RetryErrored(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Warning)

	st, err := mgr.ModuleStatus(ctx, EventCalendar, admin)
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.Nil(t, st.LastError)
}

type failingProbe struct{}

func (failingProbe) Installed(context.Context, string) (bool, error) {
	return false, errors.New("host unreachable")
}

func TestProbeErrorIsActivationFailure(t *testing.T) {
	f := Builtin(failingProbe{}, nil)[6].Module
	require.Equal(t, EventCalendar, f.id)
	err := f.OnActivate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host unreachable")
}

func TestFeatureActiveTracksLifecycle(t *testing.T) {
	ctx := context.Background()
	f := Builtin(nil, nil)[5].Module
	require.Equal(t, Accessibility, f.id)

	require.NoError(t, f.OnActivate(ctx))
	require.NoError(t, f.Init(ctx))
	assert.True(t, f.Active())
	require.NoError(t, f.OnDeactivate(ctx))
	assert.False(t, f.Active())
}

func TestHourTrackerConfig(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, nil)
	for _, id := range []string{RoleManager, Dashboards, HourTracker} {
		_, err := mgr.EnableModule(ctx, id, admin)
		require.NoError(t, err)
	}

	_, err := mgr.UpdateSettings(ctx, HourTracker, admin, map[string]any{"target_hours": 125})
	require.NoError(t, err)

	st, err := mgr.ModuleStatus(ctx, HourTracker, admin)
	require.NoError(t, err)
	cfg, err := HourTrackerConfig(st.Settings)
	require.NoError(t, err)
	assert.Equal(t, HourTrackerSettings{
		TargetHours:     125,
		AllowBackdating: true,
		ReminderDays:    14,
		Categories:      []string{"client", "mentor", "peer"},
	}, cfg)

	_, err = mgr.UpdateSettings(ctx, HourTracker, admin, map[string]any{"target_hours": 0})
	require.ErrorIs(t, err, fymodules.ErrInvalidSettings)
}
