// Package schema validates submissions against capability schemas, derives
// limitations schemas from capability specifications, and renders human
// readable parameter templates.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"reqline/internal/fault"
)

// Validate checks instance against the JSON Schema in schemaDoc. A failing
// instance yields a fault.ValidationError carrying the validator's message;
// an uncompilable schema yields a fault.SchemaError.
func Validate(schemaDoc map[string]any, instance any) error {
	compiled, err := Compile(schemaDoc)
	if err != nil {
		return err
	}
	normalized, err := normalize(instance)
	if err != nil {
		return fault.Validationf("encode instance: %v", err)
	}
	if err := compiled.Validate(normalized); err != nil {
		return fault.Validationf("schema validation failed: %v", err)
	}
	return nil
}

// Compile compiles schemaDoc into a reusable validator.
func Compile(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	normalized, err := normalize(schemaDoc)
	if err != nil {
		return nil, fault.Schemaf("encode schema: %v", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", normalized); err != nil {
		return nil, fault.Schemaf("register schema: %v", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fault.Schemaf("compile schema: %v", err)
	}
	return compiled, nil
}

// normalize round-trips v through JSON so the validator sees the same value
// shapes it would see on the wire.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}
