package ollama

import "testing"

func TestModelSupportsToolCalling(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"llama3.1:latest", true},
		{"Llama3.2:3b", true},
		{"llama3:8b", false},
		{"llama3-gradient:8b", false},
		{"qwen2.5-coder:7b", true},
		{"deepseek-r1:14b", false},
		{"gpt-oss:20b", true},
		{"some-new-model", false},
	}
	for _, tt := range tests {
		if got := ModelSupportsToolCalling(tt.model); got != tt.want {
			t.Errorf("ModelSupportsToolCalling(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestChatOptions(t *testing.T) {
	if (ChatOptions{}).toMap() != nil {
		t.Error("empty options should be nil")
	}
	m := ChatOptions{ContextLength: 8192, MaxOutputTokens: 512}.toMap()
	if m["num_ctx"] != 8192 || m["num_predict"] != 512 {
		t.Errorf("toMap() = %v", m)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.GetModel() != "llama3.1:latest" || c.baseURL != "http://localhost:11434" {
		t.Errorf("unexpected defaults: %s %s", c.GetModel(), c.baseURL)
	}
	if _, err := NewClient("://bad", "m"); err == nil {
		t.Error("invalid URL should fail")
	}
}
