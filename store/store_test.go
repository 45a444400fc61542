package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vapvarun/fymodules"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s fymodules.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "dashboards")
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored yet")

	rec := fymodules.Record{
		Enabled:        true,
		Settings:       map[string]any{"target_hours": 125, "label": "ACC"},
		LastError:      "boom",
		LastErrorPhase: fymodules.PhaseActivate,
	}
	require.NoError(t, s.Put(ctx, "dashboards", rec))

	got, ok, err := s.Get(ctx, "dashboards")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Enabled)
	assert.Equal(t, "boom", got.LastError)
	assert.Equal(t, fymodules.PhaseActivate, got.LastErrorPhase)
	assert.Equal(t, "ACC", got.Settings["label"])
	assert.EqualValues(t, 125, got.Settings["target_hours"])

	// Replacing drops old fields.
	require.NoError(t, s.Put(ctx, "dashboards", fymodules.Record{Enabled: false}))
	got, ok, err = s.Get(ctx, "dashboards")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Enabled)
	assert.Empty(t, got.LastError)
	assert.Empty(t, got.LastErrorPhase)
	assert.Empty(t, got.Settings)

	// Other keys are independent.
	require.NoError(t, s.Put(ctx, "checklists", fymodules.Record{Enabled: true}))
	got, _, err = s.Get(ctx, "dashboards")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestMemoryBackend(t *testing.T) {
	b, err := Open(context.Background(), Config{Driver: DriverMemory}, nil)
	require.NoError(t, err)
	defer b.Close()
	exerciseStore(t, b)
}

func TestFileStore(t *testing.T) {
	for _, name := range []string{"state.json", "state.yaml", "state.yml", "state.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			s, err := NewFileStore(path, nil)
			require.NoError(t, err)
			exerciseStore(t, s)

			// A second store over the same file sees the persisted records.
			again, err := NewFileStore(path, nil)
			require.NoError(t, err)
			got, ok, err := again.Get(context.Background(), "checklists")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, got.Enabled)
		})
	}
}

func TestFileStore_UnsupportedExtension(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "state.ini"), nil)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "dashboards")
	require.Error(t, err)
}

func TestFileStore_WatchInvalidatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "dashboards", fymodules.Record{Enabled: false}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 16)
	require.NoError(t, s.Watch(ctx, func() { changed <- struct{}{} }))

	got, _, err := s.Get(ctx, "dashboards")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	// Another process rewrites the file.
	require.NoError(t, os.WriteFile(path, []byte(`{"modules":{"dashboards":{"enabled":true}}}`), 0o600))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	assert.Eventually(t, func() bool {
		got, _, err := s.Get(ctx, "dashboards")
		return err == nil && got.Enabled
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err := reopened.Get(context.Background(), "checklists")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Enabled)
}

func TestSQLiteStore_MigratesOlderSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE module_state (
		module_id  TEXT PRIMARY KEY,
		enabled    INTEGER NOT NULL DEFAULT 0,
		settings   TEXT NOT NULL DEFAULT '{}',
		last_error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO module_state (module_id, enabled, last_error) VALUES ('dashboards', 1, 'boom')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, "dashboards")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "boom", got.LastError)
	assert.Empty(t, got.LastErrorPhase)

	got.LastErrorPhase = fymodules.PhaseInit
	require.NoError(t, s.Put(ctx, "dashboards", got))
	got, _, err = s.Get(ctx, "dashboards")
	require.NoError(t, err)
	assert.Equal(t, fymodules.PhaseInit, got.LastErrorPhase)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", "test:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	assert.True(t, mr.Exists("test:dashboards"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("fy:dashboards", "not-json"))

	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "fy:")
	defer s.Close()
	_, _, err := s.Get(context.Background(), "dashboards")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(ctx, Config{Driver: DriverFile, Path: filepath.Join(dir, "state.yaml")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, b)

	b, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(dir, "state.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, b)
	require.NoError(t, b.Close())

	_, err = Open(ctx, Config{Driver: "etcd"}, nil)
	require.ErrorIs(t, err, ErrUnsupportedDriver)

	_, err = Open(ctx, Config{Driver: DriverFile}, nil)
	require.ErrorIs(t, err, ErrMissingLocation)
}

func TestRegistryOverFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.toml")
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)

	reg := fymodules.NewRegistry(s, nil)
	reg.Register(fymodules.Descriptor{ID: "accessibility"}, nil)
	require.NoError(t, reg.SetEnabled(ctx, "accessibility", true))

	fresh := fymodules.NewRegistry(s, nil)
	fresh.Register(fymodules.Descriptor{ID: "accessibility"}, nil)
	assert.True(t, fresh.IsEnabled("accessibility"))
}
