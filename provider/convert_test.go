package provider

import (
	"testing"

	"otchat/model"
	"otchat/provider/testutil"
)

func TestConvertHistory(t *testing.T) {
	msgs := ConvertHistory(testutil.TestHistory())

	wantRoles := []string{RoleUser, RoleAssistant, RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d: %+v", len(msgs), len(wantRoles), msgs)
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, role)
		}
	}

	call := msgs[3]
	if call.TextContent() != "Let me check." {
		t.Errorf("assistant text = %q, think part should be dropped", call.TextContent())
	}
	if len(call.Parts) != 2 || call.Parts[1].Kind != model.WireFunctionCall || call.Parts[1].CallID != "call-1" {
		t.Errorf("unexpected call message %+v", call.Parts)
	}

	resp := msgs[4].Parts[0]
	if resp.Kind != model.WireFunctionResponse || resp.Result != "Sunny, 21C" || resp.Name != "get_weather" {
		t.Errorf("unexpected response %+v", resp)
	}
	if msgs[5].TextContent() != "It is sunny in Paris." {
		t.Errorf("trailing text = %q", msgs[5].TextContent())
	}
}

func TestConvertHistoryMissingResult(t *testing.T) {
	var h model.ChatHistory
	h.AppendUserMessage([]model.MessagePart{model.TextPart("go")}, fixedTime, false)
	h.AppendOrExtendAssistantMessage([]model.MessagePart{
		model.NewFunctionCallPart(model.FunctionCall{ID: "c1", Name: "echo", Args: "{}"}),
	}, fixedTime)

	msgs := ConvertHistory(h)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if got := msgs[2].Parts[0].Result; got != MissingToolResult {
		t.Errorf("result = %q, want %q", got, MissingToolResult)
	}
}

func TestConvertHistoryBlocksAndImages(t *testing.T) {
	var h model.ChatHistory
	h.AppendUserMessage([]model.MessagePart{
		model.TextPart("what is this?"),
		model.ImagePart("data:image/png;base64,aGk=", "image/png"),
		{Type: "go", Content: "package main"},
	}, fixedTime, false)

	msgs := ConvertHistory(h)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	parts := msgs[0].Parts
	if len(parts) != 3 {
		t.Fatalf("got %d parts: %+v", len(parts), parts)
	}
	if parts[1].Kind != model.WireImage || parts[1].MediaType != "image/png" {
		t.Errorf("image part = %+v", parts[1])
	}
	if parts[2].Text != "```go\npackage main\n```" {
		t.Errorf("block not re-fenced: %q", parts[2].Text)
	}
}

func TestFlattenToolCalls(t *testing.T) {
	flat := FlattenToolCalls(ConvertHistory(testutil.TestHistory()))

	for _, m := range flat {
		if m.Role == RoleTool {
			t.Fatalf("tool role survived flattening: %+v", m)
		}
		for _, p := range m.Parts {
			if p.Kind != model.WireText {
				t.Fatalf("non-text part survived flattening: %+v", p)
			}
		}
	}
	for i := 1; i < len(flat); i++ {
		if flat[i].Role == flat[i-1].Role {
			t.Errorf("messages %d and %d share role %q", i-1, i, flat[i].Role)
		}
	}

	want := "Let me check.\n\n```tool_call\nget_weather {\"location\":\"Paris\"}\n```"
	if got := flat[3].TextContent(); got != want {
		t.Errorf("flattened call = %q, want %q", got, want)
	}
}

func TestSplitDataURL(t *testing.T) {
	tests := []struct {
		url       string
		mediaType string
		data      string
		ok        bool
	}{
		{"data:image/png;base64,AAAA", "image/png", "AAAA", true},
		{"data:text/plain,hello", "", "", false},
		{"https://example.com/a.png", "", "", false},
	}
	for _, tt := range tests {
		mt, data, ok := splitDataURL(tt.url)
		if mt != tt.mediaType || data != tt.data || ok != tt.ok {
			t.Errorf("splitDataURL(%q) = %q, %q, %v", tt.url, mt, data, ok)
		}
	}
}
