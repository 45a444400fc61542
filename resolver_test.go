package fymodules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, enabled []string, descs ...Descriptor) *Resolver {
	t.Helper()
	reg := NewRegistry(nil, nil)
	for _, d := range descs {
		reg.Register(d, nil)
	}
	for _, id := range enabled {
		require.NoError(t, reg.SetEnabled(context.Background(), id, true))
	}
	return NewResolver(reg)
}

func TestResolver_CanEnable(t *testing.T) {
	r := newTestResolver(t, []string{"A"}, append(chainDescriptors(),
		Descriptor{ID: "D", Dependencies: []string{"A", "C", "ghost"}})...)

	v, err := r.CanEnable("B")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.NoError(t, v.Err("B", OpEnable))

	v, err = r.CanEnable("D")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, []string{"C", "ghost"}, v.Missing)

	_, err = r.CanEnable("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_CanDisable(t *testing.T) {
	descs := append(chainDescriptors(), Descriptor{ID: "E", Name: "Module E", Dependencies: []string{"A"}})
	r := newTestResolver(t, []string{"A", "B", "E"}, descs...)

	v, err := r.CanDisable("A")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, []string{"B", "E"}, v.Dependents)
	assert.Equal(t, []string{"Module B", "Module E"}, v.DependentNames)

	err = v.Err("A", OpDisable)
	assert.EqualError(t, err, "cannot disable A: required by Module B, Module E")

	v, err = r.CanDisable("B")
	require.NoError(t, err)
	assert.True(t, v.Allowed, "C is registered but disabled")

	_, err = r.CanDisable("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Only direct dependents are checked. A module reaching A through B can
// only be enabled while B is, and B blocks the disable of A on its own.
func TestResolver_DirectDependentsCoverTransitiveChains(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, chainDescriptors()...)
	for _, id := range []string{"A", "B", "C"} {
		_, err := m.EnableModule(ctx, id, admin)
		require.NoError(t, err)
	}

	for _, id := range []string{"A", "B"} {
		_, err := m.DisableModule(ctx, id, admin)
		assert.ErrorIs(t, err, ErrDependency, id)
	}
	assert.Equal(t, []string{"B", "C"}, m.Resolver().TransitiveDependents("A"))
}

func TestResolver_DependentsOf(t *testing.T) {
	r := newTestResolver(t, nil, chainDescriptors()...)
	assert.Equal(t, []string{"B"}, r.DependentsOf("A"))
	assert.Empty(t, r.DependentsOf("C"))
	assert.Empty(t, r.TransitiveDependents("C"))
}

func TestResolver_ActivationOrder(t *testing.T) {
	r := newTestResolver(t, nil,
		Descriptor{ID: "C", Dependencies: []string{"B"}},
		Descriptor{ID: "B", Dependencies: []string{"A"}},
		Descriptor{ID: "X"},
		Descriptor{ID: "A"},
	)

	order, err := r.ActivationOrder([]string{"A", "B", "C", "X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "X"}, order)

	order, err = r.ActivationOrder([]string{"C", "X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "X"}, order, "dependencies outside the set are ignored")
}

func TestResolver_ActivationOrderCycle(t *testing.T) {
	r := newTestResolver(t, nil,
		Descriptor{ID: "A", Dependencies: []string{"B"}},
		Descriptor{ID: "B", Dependencies: []string{"A"}},
	)

	_, err := r.ActivationOrder([]string{"A", "B"})
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "[A B A]")
}
