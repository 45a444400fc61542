package feeders

import (
	"fmt"
	"reflect"

	"github.com/golobby/config/v3/pkg/feeder"
)

// YamlFeeder reads a YAML file using the yaml struct tags.
type YamlFeeder struct {
	feeder.Yaml
}

// NewYamlFeeder creates a YamlFeeder for filePath.
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{feeder.Yaml{Path: filePath}}
}

func (f YamlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if err := f.Yaml.Feed(structure); err != nil {
		return fmt.Errorf("failed to decode YAML %s: %w", f.Path, err)
	}
	return nil
}

// TomlFeeder reads a TOML file using the toml struct tags.
type TomlFeeder struct {
	feeder.Toml
}

// NewTomlFeeder creates a TomlFeeder for filePath.
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: filePath}}
}

func (f TomlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if err := f.Toml.Feed(structure); err != nil {
		return fmt.Errorf("failed to decode TOML %s: %w", f.Path, err)
	}
	return nil
}

// JSONFeeder reads a JSON file using the json struct tags. Durations are
// given in nanoseconds, as encoding/json does.
type JSONFeeder struct {
	feeder.Json
}

// NewJSONFeeder creates a JSONFeeder for filePath.
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{feeder.Json{Path: filePath}}
}

func (f JSONFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if err := f.Json.Feed(structure); err != nil {
		return fmt.Errorf("failed to decode JSON %s: %w", f.Path, err)
	}
	return nil
}

func checkStructure(structure any) error {
	t := reflect.TypeOf(structure)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct ||
		reflect.ValueOf(structure).IsNil() {
		return fmt.Errorf("%w, got %T", ErrInvalidStructure, structure)
	}
	return nil
}
