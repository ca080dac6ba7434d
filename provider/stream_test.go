package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"otchat/model"
	"otchat/ollama"
)

type recorder struct {
	text  strings.Builder
	calls map[int]*model.FunctionCall
	order []int
	stop  func(text string) bool
}

func (r *recorder) callbacks() model.StreamCallbacks {
	r.calls = map[int]*model.FunctionCall{}
	return model.StreamCallbacks{
		OnText: func(s string) { r.text.WriteString(s) },
		OnFunctionCall: func(index int, id, name, args string) {
			fc, ok := r.calls[index]
			if !ok {
				fc = &model.FunctionCall{}
				r.calls[index] = fc
				r.order = append(r.order, index)
			}
			if id != "" {
				fc.ID = id
			}
			if name != "" {
				fc.Name = name
			}
			fc.Args += args
		},
		IsCancelled: func() bool { return r.stop != nil && r.stop(r.text.String()) },
	}
}

func sseServer(t *testing.T, status int, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"bad tool schema","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(delta, finish string) string {
	if finish == "" {
		finish = "null"
	} else {
		finish = `"` + finish + `"`
	}
	return `{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":` + delta + `,"finish_reason":` + finish + `}]}`
}

func TestOpenAIChatStream(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		chunk(`{"role":"assistant","content":"Hel"}`, ""),
		chunk(`{"content":"lo"}`, ""),
		chunk(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"echo","arguments":"{\"te"}}]}`, ""),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"xt\":\"hi\"}"}}]}`, ""),
		chunk(`{}`, "tool_calls"),
	)

	p, err := NewOpenAIProvider(srv.URL, "key", "gpt-test", 0)
	if err != nil {
		t.Fatal(err)
	}

	var rec recorder
	final, err := p.ChatStream(context.Background(), "be brief", []model.WireMessage{
		{Role: RoleUser, Parts: []model.WirePart{{Kind: model.WireText, Text: "hi"}}},
	}, nil, rec.callbacks())
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if final.Text != "Hello" || rec.text.String() != "Hello" {
		t.Errorf("text = %q / %q", final.Text, rec.text.String())
	}
	if final.StopReason != "tool_calls" {
		t.Errorf("StopReason = %q", final.StopReason)
	}
	fc := rec.calls[0]
	if fc == nil || fc.ID != "call_1" || fc.Name != "echo" || fc.Args != `{"text":"hi"}` {
		t.Errorf("assembled call = %+v", fc)
	}
}

func TestOpenAIChatStreamCancelled(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		chunk(`{"content":"one "}`, ""),
		chunk(`{"content":"two "}`, ""),
		chunk(`{"content":"three"}`, ""),
	)
	p, _ := NewOpenAIProvider(srv.URL, "key", "gpt-test", 0)

	rec := recorder{stop: func(text string) bool { return text != "" }}
	final, err := p.ChatStream(context.Background(), "", nil, nil, rec.callbacks())
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if !final.Cancelled || final.Text != "one " {
		t.Errorf("final = %+v", final)
	}
}

func TestOpenAIChatStreamBadRequest(t *testing.T) {
	srv := sseServer(t, http.StatusBadRequest)
	p, _ := NewOpenAIProvider(srv.URL, "key", "gpt-test", 0)

	var rec recorder
	_, err := p.ChatStream(context.Background(), "", nil, nil, rec.callbacks())
	if !errors.Is(err, model.ErrMalformedRequest) {
		t.Fatalf("error = %v, want malformed request", err)
	}
}

func ollamaServer(t *testing.T, status int, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":"model is busy"}`)
			return
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaChatStream(t *testing.T) {
	srv := ollamaServer(t, http.StatusOK,
		`{"model":"m","message":{"role":"assistant","content":"Let me "},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"look."},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"echo","arguments":{"text":"hi"}}}]},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
	)
	p, err := NewOllamaProvider(srv.URL, "llama3.1", ollama.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var rec recorder
	final, err := p.ChatStream(context.Background(), `say "hi"`, nil, nil, rec.callbacks())
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if final.Text != "Let me look." || final.StopReason != "stop" {
		t.Errorf("final = %+v", final)
	}
	fc := rec.calls[0]
	if fc == nil || fc.Name != "echo" || fc.Args != `{"text":"hi"}` || fc.ID == "" {
		t.Errorf("call = %+v", fc)
	}
}

func TestOllamaChatStreamCancelled(t *testing.T) {
	srv := ollamaServer(t, http.StatusOK,
		`{"model":"m","message":{"role":"assistant","content":"one "},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"two"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true}`,
	)
	p, _ := NewOllamaProvider(srv.URL, "llama3.1", ollama.ChatOptions{})

	rec := recorder{stop: func(text string) bool { return text != "" }}
	final, err := p.ChatStream(context.Background(), "", nil, nil, rec.callbacks())
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if !final.Cancelled || final.Text != "one " {
		t.Errorf("final = %+v", final)
	}
}

func TestOllamaChatStreamRateLimited(t *testing.T) {
	srv := ollamaServer(t, http.StatusTooManyRequests)
	p, _ := NewOllamaProvider(srv.URL, "llama3.1", ollama.ChatOptions{})

	var rec recorder
	_, err := p.ChatStream(context.Background(), "", nil, nil, rec.callbacks())
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("error = %v, want rate limited", err)
	}
}

func TestToOllamaMessages(t *testing.T) {
	msgs := ToOllamaMessages(ConvertHistory(historyWithImageAndCall()))

	if len(msgs) != 3 {
		t.Fatalf("got %d messages: %+v", len(msgs), msgs)
	}
	if len(msgs[0].Images) != 1 || string(msgs[0].Images[0]) != "hi" {
		t.Errorf("image not decoded: %+v", msgs[0].Images)
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].Function.Arguments["text"] != "x" {
		t.Errorf("tool call = %+v", msgs[1].ToolCalls)
	}
	if msgs[2].Role != "tool" || msgs[2].ToolName != "echo" || msgs[2].Content != "x" {
		t.Errorf("tool response = %+v", msgs[2])
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := ToOpenAIMessages("sys", ConvertHistory(historyWithImageAndCall()))
	if len(msgs) != 4 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].OfSystem == nil || msgs[1].OfUser == nil || msgs[2].OfAssistant == nil || msgs[3].OfTool == nil {
		t.Fatalf("unexpected roles %+v", msgs)
	}
	if len(msgs[1].OfUser.Content.OfArrayOfContentParts) != 2 {
		t.Errorf("image message should use content parts")
	}
	calls := msgs[2].OfAssistant.ToolCalls
	if len(calls) != 1 || calls[0].OfFunction.Function.Arguments != `{text: "x"}` {
		t.Errorf("tool calls = %+v", calls)
	}
	if msgs[3].OfTool.ToolCallID != "c1" {
		t.Errorf("tool call id = %q", msgs[3].OfTool.ToolCallID)
	}
}

func TestToAnthropicMessages(t *testing.T) {
	msgs := ToAnthropicMessages(ConvertHistory(historyWithImageAndCall()))
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if len(msgs[0].Content) != 2 || msgs[0].Content[1].OfImage == nil {
		t.Errorf("user content = %+v", msgs[0].Content)
	}
	if msgs[1].Content[0].OfToolUse == nil || msgs[1].Content[0].OfToolUse.ID != "c1" {
		t.Errorf("assistant content = %+v", msgs[1].Content)
	}
	if msgs[2].Content[0].OfToolResult == nil {
		t.Errorf("tool result = %+v", msgs[2].Content)
	}
}

func historyWithImageAndCall() model.ChatHistory {
	var h model.ChatHistory
	h.AppendUserMessage([]model.MessagePart{
		model.TextPart("look"),
		model.ImagePart("data:image/png;base64,aGk=", "image/png"),
	}, fixedTime, false)
	h.AppendOrExtendAssistantMessage([]model.MessagePart{
		model.NewFunctionCallPart(model.FunctionCall{ID: "c1", Name: "echo", Args: `{text: "x"}`, Result: "x"}),
	}, fixedTime)
	return h
}
