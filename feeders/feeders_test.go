package feeders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerConfig struct {
	Addr    string        `yaml:"addr" json:"addr" toml:"addr" env:"ADDR"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" toml:"timeout" env:"TIMEOUT"`
}

type testConfig struct {
	Name     string         `yaml:"name" json:"name" toml:"name" env:"NAME"`
	Port     int            `yaml:"port" json:"port" toml:"port" env:"PORT"`
	Debug    bool           `yaml:"debug" json:"debug" toml:"debug" env:"DEBUG"`
	Modules  []string       `yaml:"modules" json:"modules" toml:"modules" env:"MODULES"`
	Listener listenerConfig `yaml:"listener" json:"listener" toml:"listener" env:"LISTENER"`
	ignored  string
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileFeeders(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "app.yaml",
			content: `
name: fy
port: 8080
debug: true
modules: [dashboards, checklists]
listener:
  addr: ":9000"
  timeout: 5s
`,
		},
		{
			name: "toml",
			file: "app.toml",
			content: `
name = "fy"
port = 8080
debug = true
modules = ["dashboards", "checklists"]

[listener]
addr = ":9000"
timeout = "5s"
`,
		},
		{
			name:    "json",
			file:    "app.json",
			content: `{"name":"fy","port":8080,"debug":true,"modules":["dashboards","checklists"],"listener":{"addr":":9000","timeout":5000000000}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			f, err := ForFile(path)
			require.NoError(t, err)

			var cfg testConfig
			require.NoError(t, f.Feed(&cfg))
			assert.Equal(t, "fy", cfg.Name)
			assert.Equal(t, 8080, cfg.Port)
			assert.True(t, cfg.Debug)
			assert.Equal(t, []string{"dashboards", "checklists"}, cfg.Modules)
			assert.Equal(t, ":9000", cfg.Listener.Addr)
			assert.Equal(t, 5*time.Second, cfg.Listener.Timeout)
		})
	}
}

func TestForFile_UnsupportedExtension(t *testing.T) {
	_, err := ForFile("app.ini")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFileFeeder_Errors(t *testing.T) {
	var cfg testConfig
	err := NewYamlFeeder(filepath.Join(t.TempDir(), "missing.yaml")).Feed(&cfg)
	require.Error(t, err)

	path := writeFile(t, "app.yaml", "name: fy")
	err = NewYamlFeeder(path).Feed(cfg)
	require.ErrorIs(t, err, ErrInvalidStructure)

	bad := writeFile(t, "bad.json", "{")
	err = NewJSONFeeder(bad).Feed(&cfg)
	require.Error(t, err)
}

func TestAffixedEnvFeeder(t *testing.T) {
	t.Setenv("FY_NAME", "from-env")
	t.Setenv("FY_PORT", "9090")
	t.Setenv("FY_DEBUG", "true")
	t.Setenv("FY_MODULES", "accessibility, dashboards")
	t.Setenv("FY_LISTENER_ADDR", "127.0.0.1:1")
	t.Setenv("FY_LISTENER_TIMEOUT", "250ms")

	cfg := testConfig{Name: "keep-me-not", ignored: "x"}
	require.NoError(t, NewAffixedEnvFeeder("FY_", "").Feed(&cfg))

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"accessibility", "dashboards"}, cfg.Modules)
	assert.Equal(t, "127.0.0.1:1", cfg.Listener.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Listener.Timeout)
	assert.Equal(t, "x", cfg.ignored)
}

func TestAffixedEnvFeeder_UnsetVariablesKeepValues(t *testing.T) {
	cfg := testConfig{Name: "file-value", Port: 1}
	require.NoError(t, NewAffixedEnvFeeder("FYTEST_UNSET", "").Feed(&cfg))
	assert.Equal(t, "file-value", cfg.Name)
	assert.Equal(t, 1, cfg.Port)
}

func TestAffixedEnvFeeder_Errors(t *testing.T) {
	var cfg testConfig
	require.ErrorIs(t, NewAffixedEnvFeeder("", "").Feed(&cfg), ErrEmptyAffix)
	require.ErrorIs(t, NewAffixedEnvFeeder("FY", "").Feed(cfg), ErrInvalidStructure)

	t.Setenv("FYBAD_PORT", "eighty")
	require.Error(t, NewAffixedEnvFeeder("FYBAD", "").Feed(&cfg))

	t.Setenv("FYDUR_LISTENER_TIMEOUT", "soon")
	require.Error(t, NewAffixedEnvFeeder("FYDUR", "").Feed(&cfg))
}
