package id

import (
	"encoding/json"
	"testing"
)

func TestNewAndParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix Prefix
	}{
		{"workflow", PrefixWorkflow},
		{"execution", PrefixExecution},
		{"event", PrefixEvent},
		{"agent", PrefixAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generated := New(tt.prefix)
			if generated.IsNil() {
				t.Fatal("New returned nil ID")
			}
			if generated.Prefix() != tt.prefix {
				t.Fatalf("prefix = %q, want %q", generated.Prefix(), tt.prefix)
			}

			parsed, err := Parse(generated.String())
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", generated.String(), err)
			}
			if parsed.String() != generated.String() {
				t.Fatalf("round-trip mismatch: %q != %q", parsed.String(), generated.String())
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not a typeid!"},
		{"missing suffix", "exec_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Fatalf("Parse(%q) = nil error, want error", tt.input)
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	t.Parallel()

	execID := NewExecutionID()

	if _, err := ParseExecutionID(execID.String()); err != nil {
		t.Fatalf("ParseExecutionID: %v", err)
	}
	if _, err := ParseWorkflowID(execID.String()); err == nil {
		t.Fatal("ParseWorkflowID accepted an exec-prefixed ID")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	original := NewWorkflowID()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != original.String() {
		t.Fatalf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}

func TestNilID(t *testing.T) {
	t.Parallel()

	if Nil.String() != "" {
		t.Fatalf("Nil.String() = %q, want empty", Nil.String())
	}
	if !Nil.IsNil() {
		t.Fatal("Nil.IsNil() = false")
	}

	v, err := Nil.Value()
	if err != nil {
		t.Fatalf("Nil.Value() error: %v", err)
	}
	if v != nil {
		t.Fatalf("Nil.Value() = %v, want nil", v)
	}
}

func TestScan(t *testing.T) {
	t.Parallel()

	original := NewAgentID()

	var scanned ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if scanned.String() != original.String() {
		t.Fatalf("Scan mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Fatal("Scan(nil) produced non-nil ID")
	}

	var fromInt ID
	if err := fromInt.Scan(42); err == nil {
		t.Fatal("Scan(int) accepted unsupported type")
	}
}
