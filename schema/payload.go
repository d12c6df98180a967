// Package schema validates event payloads against registered JSON schemas and
// enforces the structural rules for payload definitions at registration time.
package schema

import (
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// PayloadIsValid reports whether payload conforms to the JSON schema in
// schemaStr. Unparseable payloads and uncompilable schemas are treated as
// invalid rather than errors; publish rejects them the same way.
func PayloadIsValid(payload string, schemaStr string) bool {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaStr))
	if err != nil {
		slog.Warn("Could not parse schema object", "error", err)
		return false
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload_definition.json", schemaDoc); err != nil {
		slog.Warn("Could not add schema resource", "error", err)
		return false
	}
	compiled, err := compiler.Compile("payload_definition.json")
	if err != nil {
		slog.Warn("Could not compile schema", "error", err)
		return false
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		slog.Warn("Could not parse payload object", "error", err)
		return false
	}

	return compiled.Validate(instance) == nil
}
