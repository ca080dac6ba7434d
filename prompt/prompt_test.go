package prompt

import (
	"strings"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
)

var testTools = []mcptypes.Tool{
	{
		Name:        "echo",
		Description: "Return the given text unchanged.",
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"text": map[string]any{"type": "string"},
				"mode": map[string]any{"type": "string", "enum": []any{"loud", "quiet"}},
			},
			Required: []string{"text"},
		},
	},
	{Name: "current_time"},
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		additional string
		style      string
		tools      []mcptypes.Tool
		memory     []string
		contains   []string
		absent     []string
	}{
		{
			name:       "prompt only",
			additional: "  Be brief.  ",
			contains:   []string{"Be brief."},
			absent:     []string{"TOOLS:", "remember"},
		},
		{
			name:     "native tools",
			style:    config.ToolCallNative,
			tools:    testTools,
			contains: []string{"TOOLS: echo, current_time"},
			absent:   []string{"```tool_call"},
		},
		{
			name:  "fenced tools",
			style: config.ToolCallFenced,
			tools: testTools,
			contains: []string{
				"```tool_call",
				"- echo: Return the given text unchanged.",
				`arguments: {mode: string one of ["loud","quiet"], text: string (required)}`,
				"- current_time",
			},
		},
		{
			name:     "memory",
			memory:   []string{"Prefers Go", " ", "Lives in Berlin"},
			contains: []string{"- Prefers Go\n- Lives in Berlin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.additional, tt.style, tt.tools, tt.memory)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(got, unwanted) {
					t.Errorf("prompt should not contain %q:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestBuildLayerOrder(t *testing.T) {
	got := Build("SYSTEM", config.ToolCallNative, testTools, []string{"fact"})
	tools := strings.Index(got, "TOOLS:")
	system := strings.Index(got, "SYSTEM")
	memory := strings.Index(got, "fact")
	if !(tools < system && system < memory) {
		t.Errorf("unexpected layer order in:\n%s", got)
	}
	if Build("", "", nil, nil) != "" {
		t.Error("empty inputs should give an empty prompt")
	}
}
