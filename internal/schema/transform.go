package schema

import (
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	draft07        = "http://json-schema.org/draft-07/schema#"
	draft07NoHash  = "http://json-schema.org/draft-07/schema"
	draft2020URI   = "https://json-schema.org/draft/2020-12/schema"
	emptyObjectTyp = "object"
)

// Transform converts JSON Schema draft-07 to draft-2020-12 for compatibility.
// Downstream servers written against older SDKs still advertise draft-07; the
// catalog hands schemas to clients that expect 2020-12.
func Transform(schema *jsonschema.Schema) *jsonschema.Schema {
	if schema == nil {
		return nil
	}

	// Work on a copy; the downstream connection keeps the original.
	transformed := *schema

	if schema.Schema == draft07 || schema.Schema == draft07NoHash {
		transformed.Schema = draft2020URI
	}

	if schema.Properties != nil {
		transformed.Properties = make(map[string]*jsonschema.Schema, len(schema.Properties))
		for k, v := range schema.Properties {
			transformed.Properties[k] = Transform(v)
		}
	}
	if schema.Defs != nil {
		transformed.Defs = make(map[string]*jsonschema.Schema, len(schema.Defs))
		for k, v := range schema.Defs {
			transformed.Defs[k] = Transform(v)
		}
	}

	transformed.Items = Transform(schema.Items)
	transformed.AdditionalProperties = Transform(schema.AdditionalProperties)
	transformed.AllOf = transformAll(schema.AllOf)
	transformed.AnyOf = transformAll(schema.AnyOf)
	transformed.OneOf = transformAll(schema.OneOf)

	return &transformed
}

func transformAll(schemas []*jsonschema.Schema) []*jsonschema.Schema {
	if schemas == nil {
		return nil
	}
	out := make([]*jsonschema.Schema, len(schemas))
	for i, s := range schemas {
		out[i] = Transform(s)
	}
	return out
}

// ForCatalog returns the schema to publish for a tool. A missing schema
// becomes an empty object schema, and a transformation panic falls back to
// the original so one odd schema never hides a tool.
func ForCatalog(schema *jsonschema.Schema, tool string, logger *slog.Logger) (result *jsonschema.Schema) {
	if schema == nil {
		return &jsonschema.Schema{Type: emptyObjectTyp}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("schema transformation failed; publishing original schema", "tool", tool, "panic", r)
			result = schema
		}
	}()

	return Transform(schema)
}
