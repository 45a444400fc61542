// Package config loads the application configuration from defaults, an
// optional YAML, TOML or JSON file and FYMODULES_* environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vapvarun/fymodules"
	"github.com/vapvarun/fymodules/feeders"
	"github.com/vapvarun/fymodules/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FYMODULES"

// AppConfig is the configuration of the fymodules server and CLI.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server" json:"server" toml:"server" env:"SERVER"`
	Store      store.Config     `yaml:"store" json:"store" toml:"store" env:"STORE"`
	Auth       AuthConfig       `yaml:"auth" json:"auth" toml:"auth" env:"AUTH"`
	Quarantine QuarantineConfig `yaml:"quarantine" json:"quarantine" toml:"quarantine" env:"QUARANTINE"`
	Log        LogConfig        `yaml:"log" json:"log" toml:"log" env:"LOG"`

	// Bootstrap lists modules enabled on a fresh store, dependencies first.
	Bootstrap []string `yaml:"bootstrap" json:"bootstrap" toml:"bootstrap" env:"BOOTSTRAP" desc:"Modules enabled when the store is empty"`

	// Plugins lists the host plugins installed next to the platform.
	Plugins []string `yaml:"plugins" json:"plugins" toml:"plugins" env:"PLUGINS" desc:"Installed host plugins, such as learndash"`

	// Roles maps role names to the capabilities they grant. When empty,
	// DefaultRoles applies.
	Roles map[string][]string `yaml:"roles" json:"roles" toml:"roles"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr" toml:"addr" env:"ADDR" default:":8080" desc:"HTTP listen address"`
	BasePath     string        `yaml:"base_path" json:"base_path" toml:"base_path" env:"BASE_PATH" default:"/api" desc:"Path prefix of the module routes"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout" env:"READ_TIMEOUT" default:"10s" desc:"HTTP read timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s" desc:"HTTP write timeout"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" json:"secret" toml:"secret" env:"SECRET" required:"true" desc:"HMAC secret for actor and nonce tokens"`
	Issuer   string        `yaml:"issuer" json:"issuer" toml:"issuer" env:"ISSUER" default:"fymodules" desc:"Token issuer"`
	TokenTTL time.Duration `yaml:"token_ttl" json:"token_ttl" toml:"token_ttl" env:"TOKEN_TTL" default:"1h" desc:"Lifetime of issued actor tokens"`
	NonceTTL time.Duration `yaml:"nonce_ttl" json:"nonce_ttl" toml:"nonce_ttl" env:"NONCE_TTL" default:"30m" desc:"Lifetime of anti-forgery nonces"`

	// DisableNonce turns off the anti-forgery check, for local tooling.
	DisableNonce bool `yaml:"disable_nonce" json:"disable_nonce" toml:"disable_nonce" env:"DISABLE_NONCE"`
}

type QuarantineConfig struct {
	Schedule string `yaml:"schedule" json:"schedule" toml:"schedule" env:"SCHEDULE" default:"*/5 * * * *" desc:"Cron schedule for retrying quarantined modules"`
	Disabled bool   `yaml:"disabled" json:"disabled" toml:"disabled" env:"DISABLED" desc:"Turn off scheduled retries"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" toml:"level" env:"LEVEL" default:"info" desc:"debug, info, warn or error"`
	Format string `yaml:"format" json:"format" toml:"format" env:"FORMAT" default:"text" desc:"text or json"`
}

// DefaultRoles grants administrators every module and coach admins the
// modules that are not security sensitive.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"administrator": {fymodules.CapabilityManageModules, fymodules.CapabilityManageSecurity},
		"coach_admin":   {fymodules.CapabilityManageModules},
	}
}

// Validate checks values the tags cannot express.
func (c *AppConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("%w: log level %q", ErrInvalidValue, c.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("%w: log format %q", ErrInvalidValue, c.Log.Format)
	}
	if !slices.Contains([]string{store.DriverMemory, store.DriverFile, store.DriverSQLite, store.DriverRedis}, strings.ToLower(c.Store.Driver)) {
		return fmt.Errorf("%w: store driver %q", ErrInvalidValue, c.Store.Driver)
	}
	if len(c.Auth.Secret) < 16 {
		return fmt.Errorf("%w: auth secret must be at least 16 bytes", ErrInvalidValue)
	}
	if !c.Quarantine.Disabled {
		if _, err := cron.ParseStandard(c.Quarantine.Schedule); err != nil {
			return fmt.Errorf("%w: quarantine schedule: %w", ErrInvalidValue, err)
		}
	}
	if len(c.Roles) == 0 {
		c.Roles = DefaultRoles()
	}
	return nil
}

// Load builds an AppConfig. Values come from the file at path (skipped when
// path is empty), then from the environment, and defaults fill the rest.
func Load(path string) (*AppConfig, error) {
	var srcs []feeders.Feeder
	if path != "" {
		f, err := feeders.ForFile(path)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, f)
	}
	srcs = append(srcs, feeders.NewAffixedEnvFeeder(EnvPrefix, ""))

	cfg := &AppConfig{}
	for _, f := range srcs {
		if err := f.Feed(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
