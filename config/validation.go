package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Struct tag keys
const (
	tagDefault  = "default"
	tagRequired = "required"
	tagDesc     = "desc"
)

var (
	ErrConfigNil              = errors.New("config cannot be nil")
	ErrConfigNotPointer       = errors.New("config must be a pointer to a struct")
	ErrRequiredFieldMissing   = errors.New("required config fields are missing")
	ErrUnsupportedDefaultType = errors.New("unsupported type for default value")
	ErrInvalidValue           = errors.New("invalid config value")
)

// Validator is implemented by configs with checks beyond required fields.
type Validator interface {
	Validate() error
}

// ProcessDefaults sets every zero field that has a `default:"..."` tag.
// Nested structs are processed recursively. Slice defaults are comma
// separated.
func ProcessDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return processDefaults(v)
}

func processDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := processDefaults(field); err != nil {
				return err
			}
			continue
		}

		def, ok := fieldType.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			continue
		}
		if err := setDefault(field, def); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

func setDefault(field reflect.Value, def string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(def)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(def)
	case reflect.Bool:
		b, err := strconv.ParseBool(def)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(def, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(def, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(def, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", ErrUnsupportedDefaultType, field.Type())
		}
		parts := strings.Split(def, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDefaultType, field.Kind())
	}
	return nil
}

// ValidateRequired reports every field tagged `required:"true"` that is
// still zero, by its dotted Go path.
func ValidateRequired(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	var missing []string
	collectMissing(v, "", &missing)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

func collectMissing(v reflect.Value, prefix string, missing *[]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		name := fieldType.Name
		if prefix != "" {
			name = prefix + "." + name
		}
		if field.Kind() == reflect.Struct {
			collectMissing(field, name, missing)
			continue
		}
		if fieldType.Tag.Get(tagRequired) == "true" && field.IsZero() {
			*missing = append(*missing, name)
		}
	}
}

// Describe lists the dotted path, default and description of every tagged
// field, for help output.
func Describe(cfg any) ([]FieldDoc, error) {
	v, err := structValue(cfg)
	if err != nil {
		return nil, err
	}
	var docs []FieldDoc
	describe(v.Type(), "", &docs)
	return docs, nil
}

// FieldDoc documents one config field.
type FieldDoc struct {
	Path        string
	Default     string
	Required    bool
	Description string
}

func describe(t reflect.Type, prefix string, docs *[]FieldDoc) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			describe(f.Type, name, docs)
			continue
		}
		desc, hasDesc := f.Tag.Lookup(tagDesc)
		def, hasDefault := f.Tag.Lookup(tagDefault)
		required := f.Tag.Get(tagRequired) == "true"
		if !hasDesc && !hasDefault && !required {
			continue
		}
		*docs = append(*docs, FieldDoc{Path: name, Default: def, Required: required, Description: desc})
	}
}

// ValidateConfig applies defaults, checks required fields and then calls
// Validate when cfg implements Validator.
func ValidateConfig(cfg any) error {
	if err := ProcessDefaults(cfg); err != nil {
		return err
	}
	if err := ValidateRequired(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotPointer
	}
	return v.Elem(), nil
}
