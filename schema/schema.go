// Package schema validates step parameters and outputs against their
// declared JSON schemas at runtime.
package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xraph/conductor"
)

// Validate checks doc against the given JSON schema. A nil schema means
// no validation. Violations are returned as a
// *conductor.SchemaValidationError carrying the step and direction so
// the engine can record them on the step state.
func Validate(stepID, direction string, schema, doc map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	docLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema: validate step %q %s: %w", stepID, direction, err)
	}
	if result.Valid() {
		return nil
	}

	causes := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		causes = append(causes, desc.String())
	}

	return &conductor.SchemaValidationError{
		StepID:    stepID,
		Direction: direction,
		Causes:    causes,
	}
}
