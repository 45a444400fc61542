// Package feeders fills configuration structs from files and environment
// variables. Feeders run in order; later feeders override earlier ones.
package feeders

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Feeder populates a pointer to a struct.
type Feeder interface {
	Feed(structure any) error
}

var (
	ErrInvalidStructure  = errors.New("feeder: expected pointer to struct")
	ErrUnsupportedFormat = errors.New("feeder: unsupported file format")
	ErrEmptyAffix        = errors.New("feeder: prefix or suffix cannot be empty")
)

// ForFile returns the file feeder matching the extension of path.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
