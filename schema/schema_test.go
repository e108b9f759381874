package schema

import (
	"errors"
	"testing"

	"github.com/xraph/conductor"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	objSchema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer"},
		},
	}

	tests := []struct {
		name    string
		schema  map[string]any
		doc     map[string]any
		wantErr bool
	}{
		{
			name:   "nil schema skips validation",
			schema: nil,
			doc:    map[string]any{"anything": true},
		},
		{
			name:   "valid document",
			schema: objSchema,
			doc:    map[string]any{"email": "a@b.co", "count": 3},
		},
		{
			name:    "missing required field",
			schema:  objSchema,
			doc:     map[string]any{"count": 3},
			wantErr: true,
		},
		{
			name:    "wrong type",
			schema:  objSchema,
			doc:     map[string]any{"email": 42},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("send_email", "input", tt.schema, tt.doc)
			if tt.wantErr {
				var sve *conductor.SchemaValidationError
				if !errors.As(err, &sve) {
					t.Fatalf("error = %v, want SchemaValidationError", err)
				}
				if sve.StepID != "send_email" || sve.Direction != "input" {
					t.Fatalf("error carries step=%q dir=%q", sve.StepID, sve.Direction)
				}
				if len(sve.Causes) == 0 {
					t.Fatal("SchemaValidationError has no causes")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}
