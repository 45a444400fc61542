package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder reads environment variables named PREFIX_TAG_SUFFIX from
// the env struct tags. A nested struct with an env tag adds its tag to the
// name of its fields, so Store.Path tagged STORE and PATH reads
// PREFIX_STORE_PATH.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates an AffixedEnvFeeder.
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed sets every tagged field whose variable is set and not empty.
func (f AffixedEnvFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEmptyAffix
	}
	prefix := strings.TrimSuffix(strings.ToUpper(f.Prefix), "_")
	suffix := strings.TrimPrefix(strings.ToUpper(f.Suffix), "_")
	return fillStruct(reflect.ValueOf(structure).Elem(), prefix, suffix)
}

func fillStruct(rv reflect.Value, prefix, suffix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !field.CanSet() {
			continue
		}

		envTag, hasTag := fieldType.Tag.Lookup("env")

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			nested := prefix
			if hasTag && envTag != "" {
				nested = join(prefix, strings.ToUpper(envTag))
			}
			if err := fillStruct(field, nested, suffix); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
			continue
		}
		if !hasTag || envTag == "" {
			continue
		}

		name := join(join(prefix, strings.ToUpper(envTag)), suffix)
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("error in field '%s' from %s: %w", fieldType.Name, name, err)
		}
	}
	return nil
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "_" + b
	}
}

// setField converts value to the field's type. Slices are comma separated.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.Slice:
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			elem, err := cast.FromType(p, field.Type().Elem())
			if err != nil {
				return fmt.Errorf("cannot convert %q to %v: %w", p, field.Type().Elem(), err)
			}
			slice = reflect.Append(slice, reflect.ValueOf(elem).Convert(field.Type().Elem()))
		}
		field.Set(slice)
		return nil
	default:
		converted, err := cast.FromType(value, field.Type())
		if err != nil {
			return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	}
}
