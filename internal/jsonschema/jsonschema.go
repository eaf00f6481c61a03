// Package jsonschema validates tool inputs and structured model output
// against caller-supplied JSON Schema documents.
//
// Grounded on pkg/pluginsdk/validation.go's compileSchema: a sync.Map
// keyed by the raw schema text so the same tool's InputSchema or an
// agent's StructuredOutputSchema is compiled once and reused across every
// call, instead of re-parsing the schema on every tool invocation.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles and caches JSON Schema documents keyed by their raw
// text, and validates arbitrary JSON payloads against them.
type Validator struct {
	cache sync.Map // string (schema text) -> *jsonschema.Schema
}

// NewValidator returns a ready-to-use Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// compile returns the compiled schema for raw, compiling and caching it on
// first use.
func (v *Validator) compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

// Validate checks payload against schema. An empty schema always passes —
// callers (tools, agents) are not required to declare one.
func (v *Validator) Validate(schema json.RawMessage, payload json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return err
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
