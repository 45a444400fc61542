// Package store provides the persistent backends for module records.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vapvarun/fymodules"
)

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrUnsupportedFormat = errors.New("unsupported store file format")
	ErrMissingLocation   = errors.New("store location is required")
)

// Config selects and configures a backend.
type Config struct {
	Driver string `yaml:"driver" json:"driver" toml:"driver" env:"DRIVER" default:"file" desc:"Store backend: memory, file, sqlite or redis"`

	// Path is the state file for the file driver and the database file for
	// the sqlite driver.
	Path string `yaml:"path" json:"path" toml:"path" env:"PATH" default:"modules.json" desc:"State file or database path"`

	RedisURL    string `yaml:"redis_url" json:"redis_url" toml:"redis_url" env:"REDIS_URL" default:"redis://localhost:6379/0" desc:"Redis connection URL"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix" toml:"redis_prefix" env:"REDIS_PREFIX" default:"fymodules:module:" desc:"Key prefix for module records"`
}

// Backend is a Store holding resources that must be released.
type Backend interface {
	fymodules.Store
	Close() error
}

// Open creates the backend described by cfg.
func Open(ctx context.Context, cfg Config, logger fymodules.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return memoryBackend{fymodules.NewMemoryStore()}, nil
	case "", DriverFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: file driver needs a path", ErrMissingLocation)
		}
		return NewFileStore(cfg.Path, logger)
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite driver needs a path", ErrMissingLocation)
		}
		return OpenSQLite(ctx, cfg.Path)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

type memoryBackend struct {
	*fymodules.MemoryStore
}

func (memoryBackend) Close() error { return nil }
