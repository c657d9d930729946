package llm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompiledSchema is a schema compiled once per caller (typically once per
// distinct struct type a session uses for chat_typed) and reused across
// calls, grounded on pluginsdk's compile-and-cache-by-string pattern.
type CompiledSchema struct {
	name     string
	compiled *jsonschema.Schema
}

var schemaCache sync.Map // string(schema json) -> *jsonschema.Schema

// CompileSchema compiles a JSON Schema document once; repeated calls with
// an identical schema string return the cached instance.
func CompileSchema(name string, schema json.RawMessage) (CompiledSchema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return CompiledSchema{name: name, compiled: cached.(*jsonschema.Schema)}, nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return CompiledSchema{}, fmt.Errorf("compile schema %s: %w", name, err)
	}
	schemaCache.Store(key, compiled)
	return CompiledSchema{name: name, compiled: compiled}, nil
}

// SchemaError reports that a vendor response could not be coerced to the
// requested schema, even after the array-unwrap fallback (spec §4.4, §7).
type SchemaError struct {
	Name   string
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm: response does not match schema %s: %v", e.Name, e.Errors)
}

// ValidateTyped implements the chat_typed decode procedure (spec §4.4,
// testable property 5):
//  1. Validate raw against schema; if valid, decode into out.
//  2. If invalid and raw is a JSON array, validate its first element; if
//     that validates, decode it into out (array-unwrap fallback).
//  3. Otherwise return *SchemaError.
func ValidateTyped(schema CompiledSchema, raw []byte, out any) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &SchemaError{Name: schema.name, Errors: []string{err.Error()}}
	}

	if err := schema.compiled.Validate(decoded); err == nil {
		return json.Unmarshal(raw, out)
	} else if arr, ok := decoded.([]any); ok && len(arr) > 0 {
		if verr := schema.compiled.Validate(arr[0]); verr == nil {
			elem, marshalErr := json.Marshal(arr[0])
			if marshalErr != nil {
				return &SchemaError{Name: schema.name, Errors: []string{marshalErr.Error()}}
			}
			return json.Unmarshal(elem, out)
		} else {
			return &SchemaError{Name: schema.name, Errors: validationMessages(verr)}
		}
	} else {
		return &SchemaError{Name: schema.name, Errors: validationMessages(err)}
	}
}

func validationMessages(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(cur *jsonschema.ValidationError) {
		if len(cur.Causes) == 0 {
			msgs = append(msgs, fmt.Sprintf("%s: %s", cur.InstanceLocation, cur.Message))
			return
		}
		for _, c := range cur.Causes {
			walk(c)
		}
	}
	walk(ve)
	return msgs
}
