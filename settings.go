package fymodules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/golobby/cast"
)

// Setting declares one configurable value of a module.
type Setting struct {
	Key         string `json:"key" yaml:"key"`
	Default     any    `json:"default" yaml:"default"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Schema holds extra JSON Schema keywords for the value, for example
	// {"minimum": 0} or {"enum": ["weekly", "monthly"]}. The type keyword is
	// derived from Default.
	Schema map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Settings is a resolved, ordered set of module settings. Declared keys come
// first in declaration order.
type Settings struct {
	keys   []string
	values map[string]any
}

// Keys returns the setting keys in order.
func (s Settings) Keys() []string {
	return slices.Clone(s.keys)
}

// Get returns the value for key.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of settings.
func (s Settings) Len() int {
	return len(s.keys)
}

// Map returns a copy of the settings as a plain map.
func (s Settings) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	maps.Copy(out, s.values)
	return out
}

// MarshalJSON writes the settings as an object preserving key order.
func (s Settings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("setting %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping its key order.
func (s *Settings) UnmarshalJSON(data []byte) error {
	*s = Settings{values: map[string]any{}}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("settings: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = v
	}
	_, err = dec.Token()
	return err
}

// Decode copies the settings into a typed struct using its json tags.
func (s Settings) Decode(target any) error {
	raw, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	return nil
}

// WithDefaults merges stored overrides over the declared defaults.
//
// The merge policy:
//   - a declared key with no stored value takes its default
//   - a stored value is converted to the type of the default; when that fails
//     the default is kept and the key is reported as rejected
//   - stored keys that are not declared are dropped and reported as rejected
//   - a declared key with a nil default accepts any stored value as-is
func WithDefaults(defaults []Setting, stored map[string]any) (Settings, []string) {
	resolved := Settings{
		keys:   make([]string, 0, len(defaults)),
		values: make(map[string]any, len(defaults)),
	}
	var rejected []string

	declared := make(map[string]bool, len(defaults))
	for _, def := range defaults {
		if declared[def.Key] {
			continue
		}
		declared[def.Key] = true
		resolved.keys = append(resolved.keys, def.Key)

		raw, ok := stored[def.Key]
		if !ok {
			resolved.values[def.Key] = def.Default
			continue
		}
		v, err := coerce(raw, def.Default)
		if err != nil {
			rejected = append(rejected, def.Key)
			resolved.values[def.Key] = def.Default
			continue
		}
		resolved.values[def.Key] = v
	}

	for _, k := range slices.Sorted(maps.Keys(stored)) {
		if !declared[k] {
			rejected = append(rejected, k)
		}
	}

	return resolved, rejected
}

// coerce converts v to the dynamic type of def.
func coerce(v, def any) (any, error) {
	if def == nil || v == nil {
		if v == nil && def != nil {
			return nil, fmt.Errorf("%w: nil value", ErrInvalidSettings)
		}
		return v, nil
	}

	target := reflect.TypeOf(def)
	if reflect.TypeOf(v) == target {
		return v, nil
	}

	switch target.Kind() {
	case reflect.Slice, reflect.Map, reflect.Struct, reflect.Array:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot encode value: %w", err)
		}
		out := reflect.New(target)
		if err := json.Unmarshal(raw, out.Interface()); err != nil {
			return nil, fmt.Errorf("cannot convert value to %v: %w", target, err)
		}
		return out.Elem().Interface(), nil
	default:
		converted, err := cast.FromType(fmt.Sprint(v), target)
		if err != nil {
			return nil, fmt.Errorf("cannot convert value to %v: %w", target, err)
		}
		return converted, nil
	}
}
