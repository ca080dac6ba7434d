package mcp

import (
	"encoding/json"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

var searchFiles = mcptypes.Tool{
	Name:        "search_files",
	Description: "Search for files in a directory",
	InputSchema: mcptypes.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory path to search",
			},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"glob", "regex"},
			},
			"recursive": map[string]any{
				"type": "boolean",
			},
			"limit": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "number"},
					map[string]any{"type": "null"},
				},
			},
		},
		Required: []string{"path"},
	},
}

func TestOllamaTools(t *testing.T) {
	if got := OllamaTools(nil); got != nil {
		t.Errorf("OllamaTools(nil) = %v, want nil", got)
	}

	result := OllamaTools([]mcptypes.Tool{searchFiles, {Name: "ping"}})
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}

	tool := result[0]
	if tool.Type != "function" || tool.Function.Name != "search_files" {
		t.Errorf("unexpected tool header %+v", tool)
	}
	params := tool.Function.Parameters
	if params.Type != "object" || len(params.Required) != 1 || len(params.Properties) != 4 {
		t.Errorf("unexpected parameters %+v", params)
	}
	if mode := params.Properties["mode"]; len(mode.Enum) != 2 {
		t.Errorf("mode enum = %v", mode.Enum)
	}
	if limit := params.Properties["limit"]; len(limit.AnyOf) != 2 {
		t.Errorf("limit anyOf = %v", limit.AnyOf)
	}
	if path := params.Properties["path"]; len(path.Type) != 1 || path.Type[0] != "string" {
		t.Errorf("path type = %v", path.Type)
	}

	// A schema without a type still yields an object schema.
	if result[1].Function.Parameters.Type != "object" {
		t.Errorf("default type = %q", result[1].Function.Parameters.Type)
	}
}

func TestOllamaProperty(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		validate func(t *testing.T, result api.ToolProperty)
	}{
		{
			name:  "multi type",
			input: map[string]any{"type": []any{"string", "number"}},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Type) != 2 {
					t.Errorf("expected 2 types, got %v", result.Type)
				}
			},
		},
		{
			name:  "array items",
			input: map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			validate: func(t *testing.T, result api.ToolProperty) {
				if result.Items == nil {
					t.Error("expected items to be set")
				}
			},
		},
		{
			name: "struct value",
			input: struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}{"integer", "count"},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Type) != 1 || result.Type[0] != "integer" || result.Description != "count" {
					t.Errorf("struct not round-tripped: %+v", result)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, ollamaProperty(tt.input))
		})
	}
}

func TestOllamaFunctionCall(t *testing.T) {
	call := api.ToolCall{
		Function: api.ToolCallFunction{
			Name:      "echo",
			Arguments: map[string]any{"text": "hi"},
		},
	}

	fc, err := OllamaFunctionCall(call, "call-1")
	if err != nil {
		t.Fatalf("OllamaFunctionCall() error = %v", err)
	}
	if fc.ID != "call-1" || fc.Name != "echo" {
		t.Errorf("unexpected call %+v", fc)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(fc.Args), &args); err != nil || args["text"] != "hi" {
		t.Errorf("Args = %q (%v)", fc.Args, err)
	}
}

func TestOpenAITools(t *testing.T) {
	if OpenAITools(nil) != nil {
		t.Error("expected nil for no tools")
	}

	result := OpenAITools([]mcptypes.Tool{searchFiles})
	fn := result[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool")
	}
	if fn.Function.Name != "search_files" {
		t.Errorf("name = %q", fn.Function.Name)
	}
	if req, ok := fn.Function.Parameters["required"].([]string); !ok || req[0] != "path" {
		t.Errorf("required = %v", fn.Function.Parameters["required"])
	}
}

func TestAnthropicTools(t *testing.T) {
	result := AnthropicTools([]mcptypes.Tool{searchFiles, {Name: "ping"}})
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}
	if result[0].OfTool == nil || result[0].OfTool.Name != "search_files" {
		t.Fatalf("unexpected tool %+v", result[0])
	}
	if result[0].OfTool.InputSchema.Required[0] != "path" {
		t.Errorf("required = %v", result[0].OfTool.InputSchema.Required)
	}
	if props, ok := result[1].OfTool.InputSchema.Properties.(map[string]any); !ok || props == nil {
		t.Errorf("empty schema should carry an empty properties object, got %#v", result[1].OfTool.InputSchema.Properties)
	}
}
