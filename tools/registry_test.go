package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	return r
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"echo":        "echo",
		"Web-Search":  "websearch",
		"web_search":  "websearch",
		"fs.readFile": "fsreadfile",
		"  ":          "",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterConflicts(t *testing.T) {
	r := newTestRegistry(t)
	dup := mcptypes.Tool{Name: "ECHO"}
	if err := r.Register(dup, Echo); err == nil {
		t.Error("registering a normalized duplicate should fail")
	}
	if err := r.Register(mcptypes.Tool{Name: "--"}, Echo); err == nil {
		t.Error("registering an empty name should fail")
	}

	r.Unregister("Echo")
	if _, ok := r.Lookup("echo"); ok {
		t.Error("echo still registered after Unregister")
	}
	specs := r.Specs()
	if len(specs) != 1 || specs[0].Name != "current_time" {
		t.Errorf("Specs() = %+v", specs)
	}
}

func TestCall(t *testing.T) {
	r := newTestRegistry(t)
	failing := mcptypes.Tool{Name: "fail"}
	if err := r.Register(failing, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("disk full")
	}); err != nil {
		t.Fatal(err)
	}
	empty := mcptypes.Tool{Name: "silent"}
	if err := r.Register(empty, func(context.Context, map[string]any) (string, error) {
		return "  ", nil
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		tool     string
		args     string
		want     string
		contains bool
	}{
		{"json args", "echo", `{"text":"hi"}`, "hi", false},
		{"lenient args", "Echo", `{text: 'hi',}`, "hi", false},
		{"coerced number", "echo", `{text: 42}`, "42", false},
		{"missing required", "echo", `{}`, "missing required field(s) text", true},
		{"unparsable", "echo", `{text: "hi"`, "Error: invalid arguments for echo", true},
		{"unknown tool", "nope", `{}`, `Error: unknown tool "nope"`, true},
		{"tool error", "fail", ``, "Error: fail failed: disk full", true},
		{"empty output", "silent", ``, NoOutput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Call(context.Background(), tt.tool, tt.args)
			if tt.contains {
				if !strings.Contains(got, tt.want) {
					t.Errorf("Call() = %q, want it to contain %q", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Call() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateArgsCoercion(t *testing.T) {
	schema := mcptypes.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"count":   map[string]any{"type": "integer"},
			"verbose": map[string]any{"type": "boolean"},
			"tags":    map[string]any{"type": "array"},
			"either":  map[string]any{"type": []any{"number", "string"}},
		},
	}

	got, err := ValidateArgs(schema, map[string]any{
		"count":   "3",
		"verbose": "true",
		"tags":    "solo",
		"either":  "x",
		"extra":   1.0,
	})
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if got["count"] != 3.0 || got["verbose"] != true || got["either"] != "x" || got["extra"] != 1.0 {
		t.Errorf("ValidateArgs() = %#v", got)
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 1 {
		t.Errorf("tags = %#v, want wrapped scalar", got["tags"])
	}

	if _, err := ValidateArgs(schema, map[string]any{"count": 1.5}); err == nil {
		t.Error("fractional integer should fail")
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fn := CurrentTime(func() time.Time { return fixed })

	out, err := fn(context.Background(), map[string]any{})
	if err != nil || out != fixed.Format(time.RFC1123Z) {
		t.Errorf("CurrentTime() = %q, %v", out, err)
	}
	if _, err := fn(context.Background(), map[string]any{"timezone": "Mars/Olympus"}); err == nil {
		t.Error("unknown zone should fail")
	}
}
