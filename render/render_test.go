package render

import (
	"strings"
	"testing"

	"otchat/model"
)

func TestMarkdownStripsLinkSyntax(t *testing.T) {
	out := Markdown("see [docs](https://example.com/docs)", 80)
	if !strings.Contains(out, "https://example.com/docs") {
		t.Errorf("Markdown() = %q, want bare URL", out)
	}
	if strings.Contains(out, "[docs]") {
		t.Errorf("Markdown() kept link syntax: %q", out)
	}
}

func TestParts(t *testing.T) {
	parts := []model.MessagePart{
		{Type: model.TypeThink, Content: "pondering"},
		model.TextPart("Hello"),
		model.NewFunctionCallPart(model.FunctionCall{ID: "1", Name: "echo", Args: `{"text": "hi"}`, Result: "hi"}),
		model.ImagePart("data:image/png;base64,AAAA", "image/png"),
	}

	out := Parts(parts, 80)
	for _, want := range []string{"thinking: pondering", "Hello", "⚙ echo", `{"text": "hi"}`, "→ hi", "[image image/png]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Parts() missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "pondering") > strings.Index(out, "Hello") {
		t.Error("Parts() reordered think and text")
	}
}

func TestFunctionCall(t *testing.T) {
	tests := []struct {
		name    string
		fc      model.FunctionCall
		want    []string
		notWant []string
	}{
		{
			name:    "pending",
			fc:      model.FunctionCall{Name: "current_time", Args: "{}"},
			want:    []string{"⚙ current_time", "({})"},
			notWant: []string{"→"},
		},
		{
			name: "error result",
			fc:   model.FunctionCall{Name: "echo", Args: "{}", Result: "Error: invalid arguments"},
			want: []string{"→ Error: invalid arguments"},
		},
		{
			name: "long result capped",
			fc:   model.FunctionCall{Name: "ls", Args: "{}", Result: strings.Repeat("line\n", 20)},
			want: []string{"… 12 more lines"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FunctionCall(model.NewFunctionCallPart(tt.fc), 80)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("FunctionCall() missing %q in %q", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("FunctionCall() contains %q in %q", w, out)
				}
			}
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		msg  model.Msg
		want string
	}{
		{model.Msg{Role: model.RoleUser}, "You"},
		{model.Msg{Role: model.RoleUser, Uphurry: true}, "You (auto)"},
		{model.Msg{Role: model.RoleAssistant}, "Assistant"},
	}

	for _, tt := range tests {
		if got := Label(&tt.msg); !strings.Contains(got, tt.want) {
			t.Errorf("Label(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
