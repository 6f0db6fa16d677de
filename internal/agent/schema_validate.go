package agent

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validateAgainstSchema checks a tool call's parsed arguments against the
// tool's own registered JSON Schema, ahead of building the human-readable
// approval description shown to the human approver. A missing schema, or
// one that fails to compile, is not itself a validation failure — it just
// means nothing to check against — so this only ever returns an error for
// an actual schema mismatch.
func validateAgainstSchema(schema, args json.RawMessage) error {
	if len(schema) == 0 || len(args) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-args.json", bytes.NewReader(schema)); err != nil {
		return nil
	}
	compiled, err := compiler.Compile("tool-args.json")
	if err != nil {
		return nil
	}

	var parsed interface{}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil
	}
	return compiled.Validate(parsed)
}
