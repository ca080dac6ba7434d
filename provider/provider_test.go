package provider

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"

	"otchat/config"
	"otchat/model"
	"otchat/ollama"
	"otchat/provider/testutil"
)

var fixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		mc      config.ModelConfig
		want    string
		wantErr bool
	}{
		{"ollama", config.ModelConfig{ClientType: config.ClientOllama, Model: "llama3.1"}, "llama3.1", false},
		{"openai", config.ModelConfig{ClientType: config.ClientOpenAI, APIKey: "k", Model: "gpt-4o"}, "gpt-4o", false},
		{"openrouter default model", config.ModelConfig{ClientType: config.ClientOpenRouter, APIKey: "k"}, "openai/gpt-4o-mini", false},
		{"gemini", config.ModelConfig{ClientType: config.ClientGemini, APIKey: "k", Model: "gemini-2.5-pro"}, "gemini-2.5-pro", false},
		{"anthropic", config.ModelConfig{ClientType: config.ClientAnthropic, APIKey: "k"}, string(anthropic.ModelClaudeSonnet4_5_20250929), false},
		{"openai without key", config.ModelConfig{ClientType: config.ClientOpenAI}, "", true},
		{"anthropic without key", config.ModelConfig{ClientType: config.ClientAnthropic}, "", true},
		{"unknown", config.ModelConfig{ClientType: "carrier-pigeon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.mc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.GetModel() != tt.want {
				t.Errorf("GetModel() = %q, want %q", p.GetModel(), tt.want)
			}
		})
	}
}

func TestEffectiveToolStyle(t *testing.T) {
	tests := []struct {
		mc   config.ModelConfig
		want string
	}{
		{config.ModelConfig{ClientType: config.ClientOllama, Model: "llama3.1:8b"}, config.ToolCallNative},
		{config.ModelConfig{ClientType: config.ClientOllama, Model: "gemma2:2b"}, config.ToolCallFenced},
		{config.ModelConfig{ClientType: config.ClientOpenAI, Model: "anything"}, config.ToolCallNative},
		{config.ModelConfig{ClientType: config.ClientOpenAI, ToolCallStyle: config.ToolCallFenced}, config.ToolCallFenced},
	}
	for _, tt := range tests {
		if got := EffectiveToolStyle(tt.mc); got != tt.want {
			t.Errorf("EffectiveToolStyle(%s/%s) = %q, want %q", tt.mc.ClientType, tt.mc.Model, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"ollama rate limit", api.StatusError{StatusCode: http.StatusTooManyRequests, ErrorMessage: "busy"}, model.ErrRateLimited},
		{"ollama bad request", api.StatusError{StatusCode: http.StatusBadRequest, ErrorMessage: "bad"}, model.ErrMalformedRequest},
		{"ollama too large", api.StatusError{StatusCode: http.StatusRequestEntityTooLarge}, model.ErrPayloadTooLarge},
		{"plain", errors.New("connection refused"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError("test", tt.err)
			be := model.AsBackendError(err)
			if tt.sentinel == nil {
				if be.Typed() {
					t.Errorf("expected generic error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, err, tt.sentinel)
			}
		})
	}

	if classifyError("test", nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestListAllModels(t *testing.T) {
	var calls atomic.Int32
	factory := func(mc config.ModelConfig) (model.Provider, error) {
		calls.Add(1)
		if mc.ClientType == config.ClientOpenAI {
			return nil, errors.New("no key")
		}
		return testutil.NewMockProvider(mc.Model), nil
	}

	cfgs := []config.ModelConfig{
		{ID: "a", ClientType: config.ClientOllama, Model: "llama3.1"},
		{ID: "b", ClientType: config.ClientOllama, Model: "qwen3"},
		{ID: "c", ClientType: config.ClientOpenAI, Model: "gpt-4o"},
	}
	listings := ListAllModels(context.Background(), cfgs, factory)

	if len(listings) != 2 {
		t.Fatalf("got %d listings, shared endpoints should be queried once", len(listings))
	}
	if calls.Load() != 2 {
		t.Errorf("factory called %d times", calls.Load())
	}
	if listings[0].Config.ID != "a" || len(listings[0].Models) != 2 || listings[0].Err != nil {
		t.Errorf("unexpected first listing %+v", listings[0])
	}
	if listings[1].Config.ID != "c" || listings[1].Err == nil {
		t.Errorf("unexpected second listing %+v", listings[1])
	}
}

func TestMockProviderScript(t *testing.T) {
	p := testutil.NewMockProvider("mock",
		testutil.Turn{Chunks: []string{"a", "b"}, Calls: []testutil.Call{{Index: 0, ID: "c1", Name: "echo", Args: "{}"}}},
	)

	var (
		text  string
		calls int
	)
	final, err := p.ChatStream(context.Background(), "sys", nil, nil, model.StreamCallbacks{
		OnText:         func(s string) { text += s },
		OnFunctionCall: func(int, string, string, string) { calls++ },
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if text != "ab" || final.Text != "ab" || calls != 1 {
		t.Errorf("text=%q final=%q calls=%d", text, final.Text, calls)
	}

	final, _ = p.ChatStream(context.Background(), "", nil, nil, model.StreamCallbacks{})
	if final.Text != "Mock response" {
		t.Errorf("exhausted script answered %q", final.Text)
	}
	if reqs := p.Requests(); len(reqs) != 2 || reqs[0].SystemPrompt != "sys" {
		t.Errorf("requests = %+v", reqs)
	}
}

var _ model.Provider = (*OllamaProvider)(nil)
var _ model.Provider = (*OpenAIProvider)(nil)
var _ model.Provider = (*AnthropicProvider)(nil)
var _ model.Provider = (*testutil.MockProvider)(nil)

func TestEscapeQuotesForOllama(t *testing.T) {
	if got := escapeQuotesForOllama(`say "hi" it's`); got != `say \"hi\" it\'s` {
		t.Errorf("escapeQuotesForOllama() = %q", got)
	}
}

func TestOllamaChatOptionsPassThrough(t *testing.T) {
	p, err := NewOllamaProvider("", "", ollama.ChatOptions{ContextLength: 8192})
	if err != nil {
		t.Fatal(err)
	}
	if p.opts.ContextLength != 8192 {
		t.Errorf("options not kept: %+v", p.opts)
	}
}
