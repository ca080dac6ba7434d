package parser

import (
	"testing"

	"otchat/model"
)

func TestToolCallRewriter(t *testing.T) {
	fixedID := func() string { return "call-1" }

	tests := []struct {
		name     string
		input    string
		wantName string
		wantArgs string
	}{
		{"name in body", "```tool_call\necho {text: \"hi\"}\n```", "echo", `{text: "hi"}`},
		{"name in header", "```tool_call web_search\n{query: 'go'}\n```", "web_search", `{query: 'go'}`},
		{"no arguments", "```tool_call\ncurrent_time\n```", "current_time", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := parseAll(tt.input, WithBlockRewriter(ToolCallRewriter(fixedID)))
			if len(parts) != 1 {
				t.Fatalf("got %d parts: %#v", len(parts), parts)
			}
			fc, err := model.DecodeFunctionCall(parts[0])
			if err != nil {
				t.Fatalf("DecodeFunctionCall() error = %v", err)
			}
			if fc.ID != "call-1" || fc.Name != tt.wantName || fc.Args != tt.wantArgs {
				t.Errorf("call = %+v", fc)
			}
		})
	}
}

func TestToolCallRewriterLeavesOtherBlocks(t *testing.T) {
	parts := parseAll("```js\nx()\n```", WithBlockRewriter(ToolCallRewriter(nil)))
	if len(parts) != 1 || parts[0].Type != "js" {
		t.Errorf("non tool block rewritten: %#v", parts)
	}
}

func TestToolCallRewriterSkipsUnclosed(t *testing.T) {
	parts := parseAll("```tool_call\necho {}", WithBlockRewriter(ToolCallRewriter(nil)))
	if len(parts) != 1 || parts[0].Type != ToolCallBlockType {
		t.Errorf("unclosed tool block should stay a block: %#v", parts)
	}
}
