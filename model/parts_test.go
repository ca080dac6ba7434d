package model

import "testing"

func TestPartKind(t *testing.T) {
	tests := []struct {
		part MessagePart
		want PartKind
	}{
		{MessagePart{Type: ""}, KindText},
		{MessagePart{Type: "think"}, KindThink},
		{MessagePart{Type: "function_call"}, KindFunctionCall},
		{MessagePart{Type: "js"}, KindBlock},
		{MessagePart{Type: "run-js", TypeExtra: "json"}, KindBlock},
	}
	for _, tt := range tests {
		if got := tt.part.Kind(); got != tt.want {
			t.Errorf("Kind(%q) = %s, want %s", tt.part.Type, got, tt.want)
		}
	}
}

func TestFence(t *testing.T) {
	p := MessagePart{Type: "run-js", TypeExtra: "json", Content: "{}"}
	if got, want := p.Fence(), "```run-js json\n{}\n```"; got != want {
		t.Errorf("Fence() = %q, want %q", got, want)
	}
	if got := TextPart("prose").Fence(); got != "prose" {
		t.Errorf("text Fence() = %q", got)
	}
}

func TestFunctionCallEnvelope(t *testing.T) {
	part := NewFunctionCallPart(FunctionCall{ID: "c1", Name: "echo", Args: `{"text":"hi"}`})
	if part.Kind() != KindFunctionCall {
		t.Fatalf("Kind() = %s", part.Kind())
	}

	fc, err := DecodeFunctionCall(part)
	if err != nil {
		t.Fatalf("DecodeFunctionCall() error = %v", err)
	}
	if fc.Type != TypeFunctionCall || fc.Name != "echo" || fc.HasResult() {
		t.Errorf("unexpected envelope %+v", fc)
	}

	if _, err := DecodeFunctionCall(TextPart("x")); err == nil {
		t.Error("decoding a text part should fail")
	}

	calls := FunctionCalls([]MessagePart{TextPart("a"), part, {Type: TypeFunctionCall, Content: "not json"}})
	if len(calls) != 1 || calls[0].ID != "c1" {
		t.Errorf("FunctionCalls() = %+v", calls)
	}
}
