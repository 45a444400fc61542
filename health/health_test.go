package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vapvarun/fymodules"
)

func TestAggregator_WorstStatusWins(t *testing.T) {
	a := NewAggregator(0)
	assert.Equal(t, StatusHealthy, a.CheckAll(context.Background()).Status)

	require.NoError(t, a.RegisterCheck(NewBasicChecker("ok", func(context.Context) error { return nil })))
	require.ErrorIs(t, a.RegisterCheck(NewBasicChecker("ok", nil)), ErrDuplicateCheck)

	status := a.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	require.Len(t, status.Checks, 1)
	assert.Equal(t, "ok", status.Checks[0].Name)

	require.NoError(t, a.RegisterCheck(NewBasicChecker("db", func(context.Context) error {
		return errors.New("connection refused")
	})))
	status = a.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Checks[1].Error)

	require.NoError(t, a.UnregisterCheck("db"))
	assert.ErrorIs(t, a.UnregisterCheck("db"), ErrHealthCheckNotFound)
	assert.Equal(t, StatusHealthy, a.CheckAll(context.Background()).Status)
}

func TestAggregator_Timeout(t *testing.T) {
	a := NewAggregator(10 * time.Millisecond)
	require.NoError(t, a.RegisterCheck(NewBasicChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	status := a.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Checks[0].Error, "deadline")
}

func TestModulesChecker(t *testing.T) {
	ctx := context.Background()
	reg := fymodules.NewRegistry(nil, nil)
	reg.Register(fymodules.Descriptor{ID: "ok"}, nil)
	reg.Register(fymodules.Descriptor{ID: "broken"}, fymodules.Hooks{
		Activate: func(context.Context) error { return errors.New("boom") },
	})
	m := fymodules.NewManager(reg, fymodules.AllowAll, nil)
	actor := fymodules.Actor{ID: "ops"}

	c := NewModulesChecker(reg)
	res, err := c.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, res.Status)

	_, err = m.EnableModule(ctx, "ok", actor)
	require.NoError(t, err)
	_, err = m.EnableModule(ctx, "broken", actor)
	require.NoError(t, err)

	res, err = c.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, []string{"broken"}, res.Details["errored"])
	assert.Equal(t, []string{"ok", "broken"}, res.Details["enabled"])
}

func TestStoreChecker(t *testing.T) {
	res, err := StoreChecker(fymodules.NewMemoryStore()).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, res.Status)
}
