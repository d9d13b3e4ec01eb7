package agentloop

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// CompileSchema resolves a tool input schema for validation. The "$schema"
// keyword is dropped so schemas from MCP servers that declare an older draft
// are still checked with the 2020-12 rules.
func CompileSchema(schema map[string]any) (*jsonschema.Resolved, error) {
	doc := make(map[string]any, len(schema))
	for k, v := range schema {
		if k != "$schema" {
			doc[k] = v
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return s.Resolve(nil)
}

// ValidateArgs checks args against an input schema. Arguments the schema
// does not declare are tolerated unless it sets additionalProperties.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	rs, err := CompileSchema(schema)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return validateResolved(rs, args)
}

// validateResolved normalizes args to their JSON form first, so Go ints and
// json.Number values are checked the same as decoded model output. Top-level
// nulls count as omitted arguments.
func validateResolved(rs *jsonschema.Resolved, args map[string]any) error {
	present := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			present[k] = v
		}
	}
	raw, err := json.Marshal(present)
	if err != nil {
		return fmt.Errorf("arguments are not JSON: %w", err)
	}
	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return err
	}
	return rs.Validate(instance)
}
