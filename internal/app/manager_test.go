package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsrealm/realm"
)

func newTestManager(t *testing.T, mutate func(*config.Config)) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}
	m, err := NewManager(cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func TestSpawn(t *testing.T) {
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Sandbox.Shims = []string{"globalThis.shimmed = true"}
	})
	ctx := context.Background()

	root, err := m.Spawn(ctx, "", realm.KindRoot)
	require.NoError(t, err)
	v, err := root.Evaluate("shimmed", nil)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())

	nested, err := m.Spawn(ctx, root.ID().String(), realm.KindNested)
	require.NoError(t, err)
	v, err = nested.Evaluate("typeof shimmed", nil)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.String())

	derived, err := m.Spawn(ctx, nested.ID().String(), realm.KindRoot)
	require.NoError(t, err)
	assert.Len(t, derived.Shims(), 1)

	got, ok := m.Get(nested.ID().String())
	require.True(t, ok)
	assert.Same(t, nested, got)

	entries := m.List()
	require.Len(t, entries, 3)
	assert.Same(t, root, entries[0].Context)

	stats := m.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Roots)
	assert.Equal(t, 1, stats.Nested)
	assert.EqualValues(t, 3, stats.Metrics.Contexts)
}

func TestSpawnErrors(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Spawn(ctx, "", realm.KindNested)
	assert.ErrorIs(t, err, realm.ErrNoParent)

	_, err = m.Spawn(ctx, "ctx_missing", realm.KindNested)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = m.Spawn(ctx, "ctx_01ARZ3NDEKTSV4RRFFQ69G5FAV", realm.KindNested)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewManager(&config.Config{Sandbox: config.SandboxConfig{EndowmentWrites: "sometimes"}}, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestSpawnUnderParentFails(t *testing.T) {
	m := newTestManager(t, nil)
	root, err := m.Spawn(context.Background(), "", realm.KindRoot)
	require.NoError(t, err)

	var c *realm.Context
	require.NotPanics(t, func() {
		c, err = m.Spawn(context.Background(), root.ID().String(), realm.Kind(7))
	})
	assert.Error(t, err)
	assert.Nil(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Spawn(ctx, root.ID().String(), realm.KindRoot)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, m.List(), 1)
}

func TestClose(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	root, err := m.Spawn(ctx, "", realm.KindRoot)
	require.NoError(t, err)
	child, err := m.Spawn(ctx, root.ID().String(), realm.KindNested)
	require.NoError(t, err)
	other, err := m.Spawn(ctx, "", realm.KindRoot)
	require.NoError(t, err)

	assert.True(t, m.Close(root.ID().String()))
	assert.False(t, m.Close(root.ID().String()))

	_, ok := m.Get(child.ID().String())
	assert.False(t, ok)
	_, ok = m.Get(other.ID().String())
	assert.True(t, ok)
}

func TestPooledManager(t *testing.T) {
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Pool.Size = 1
	})

	for i := 0; i < 2; i++ {
		c, err := m.Spawn(context.Background(), "", realm.KindRoot)
		require.NoError(t, err)
		v, err := c.Evaluate("1+1", nil)
		require.NoError(t, err)
		assert.EqualValues(t, 2, v.Export())
	}

	stats := m.Stats()
	require.NotNil(t, stats.Pool)
	assert.Equal(t, 1, stats.Pool["size"])
}

func TestManagerEvaluate(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	root, err := m.Spawn(ctx, "", realm.KindRoot)
	require.NoError(t, err)

	v, err := m.Evaluate(ctx, root.ID().String(), "6 * 7", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, v.Export())

	_, err = m.Evaluate(ctx, "ctx_missing", "1", nil)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRateLimit(t *testing.T) {
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Limit.PerSecond = 0.001
		cfg.Limit.Burst = 1
	})
	root, err := m.Spawn(context.Background(), "", realm.KindRoot)
	require.NoError(t, err)
	id := root.ID().String()

	_, err = m.Evaluate(context.Background(), id, "1", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Evaluate(ctx, id, "2", nil)
	assert.ErrorContains(t, err, "rate limit")
}
