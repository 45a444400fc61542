package fymodules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaDocument builds the JSON Schema describing a module's settings
// object. Every declared key is optional so partial updates validate;
// undeclared keys are rejected.
func SchemaDocument(defaults []Setting) map[string]any {
	props := make(map[string]any, len(defaults))
	for _, def := range defaults {
		prop := make(map[string]any, len(def.Schema)+2)
		if t := jsonType(def.Default); t != "" {
			prop["type"] = t
		}
		if def.Description != "" {
			prop["description"] = def.Description
		}
		maps.Copy(prop, def.Schema)
		props[def.Key] = prop
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}

func jsonType(v any) string {
	if v == nil {
		return ""
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return ""
	}
}

// ValidateSettings checks values against the schema generated from defaults.
func ValidateSettings(moduleID string, defaults []Setting, values map[string]any) error {
	schema, err := compileSettingsSchema(moduleID, defaults)
	if err != nil {
		return err
	}

	doc, err := toJSONValue(values)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, moduleID, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, moduleID, err)
	}
	return nil
}

func compileSettingsSchema(moduleID string, defaults []Setting) (*jsonschema.Schema, error) {
	doc, err := toJSONValue(SchemaDocument(defaults))
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings schema for %s: %w", moduleID, err)
	}

	url := "mem://fymodules/" + moduleID + "/settings.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("failed to add settings schema for %s: %w", moduleID, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile settings schema for %s: %w", moduleID, err)
	}
	return schema, nil
}

// toJSONValue normalizes v into the value shapes the validator expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
