package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromCreatesTemplate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OTCHAT_DATA_DIR", filepath.Join(dir, "data"))
	path := filepath.Join(dir, "cfg", "settings.toml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !FileExists(path) {
		t.Error("settings template was not written")
	}
	if cfg.Storage != StorageSQLite || cfg.Session.MaxRetries != 10 || cfg.CheckInterval().Milliseconds() != 5000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	// The generated template must decode to the same defaults.
	again, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reloading template: %v", err)
	}
	if len(again.Models) != 1 || again.Models[0].ClientType != ClientOllama || !again.Session.Fallback {
		t.Errorf("template decoded to %+v", again)
	}
}

func TestLoadFromModelsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OTCHAT_DATA_DIR", dir)
	t.Setenv("OTCHAT_STORAGE", "memory")
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	path := writeSettings(t, `
storage = "json"

[session]
max_retries = 3

[[models]]
id = "gpt"
client_type = "openai"
api_key = "${TEST_OPENAI_KEY}"
model = "gpt-4o-mini"
tool_call_style = "fenced"

[[models]]
id = "claude"
client_type = "anthropic"
model = "claude-sonnet-4-5"

[[mcp_servers]]
id = "fs"
command = "mcp-fs"
args = ["/tmp"]
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %q, env override ignored", cfg.Storage)
	}
	if cfg.Session.MaxRetries != 3 || cfg.Session.MaxToolRounds != 25 {
		t.Errorf("session = %+v, want partial override over defaults", cfg.Session)
	}
	if cfg.Models[0].APIKey != "sk-test" {
		t.Errorf("APIKey = %q, env not expanded", cfg.Models[0].APIKey)
	}
	if cfg.Models[0].CallStyle() != ToolCallFenced || cfg.Models[1].CallStyle() != ToolCallNative {
		t.Error("unexpected tool call styles")
	}
	if len(cfg.MCPServers) != 1 || cfg.MCPServers[0].Args[0] != "/tmp" {
		t.Errorf("MCPServers = %+v", cfg.MCPServers)
	}
}

func TestModelChain(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{Fallback: true},
		Models:  []ModelConfig{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	tests := []struct {
		first    string
		fallback bool
		want     string
	}{
		{"", true, "a,b,c"},
		{"b", true, "b,a,c"},
		{"c", false, "c"},
	}
	for _, tt := range tests {
		cfg.Session.Fallback = tt.fallback
		chain, err := cfg.ModelChain(tt.first)
		if err != nil {
			t.Fatalf("ModelChain(%q) error = %v", tt.first, err)
		}
		ids := make([]string, len(chain))
		for i, m := range chain {
			ids[i] = m.ID
		}
		if got := strings.Join(ids, ","); got != tt.want {
			t.Errorf("ModelChain(%q) = %s, want %s", tt.first, got, tt.want)
		}
	}

	if _, err := cfg.ModelChain("missing"); err == nil {
		t.Error("unknown model id should fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		s := DefaultSettings()
		return &Config{Storage: s.Storage, Session: s.Session, Models: DefaultModels()}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad storage", func(c *Config) { c.Storage = "redis" }},
		{"bad client", func(c *Config) { c.Models[0].ClientType = "cohere" }},
		{"missing model", func(c *Config) { c.Models[0].Model = "" }},
		{"duplicate id", func(c *Config) { c.Models = append(c.Models, c.Models[0]) }},
		{"bad style", func(c *Config) { c.Models[0].ToolCallStyle = "xml" }},
		{"mcp without command", func(c *Config) { c.MCPServers = []MCPServerConfig{{ID: "x"}} }},
		{"http mcp without url", func(c *Config) { c.MCPServers = []MCPServerConfig{{ID: "x", Transport: MCPHTTP}} }},
		{"unknown mcp transport", func(c *Config) { c.MCPServers = []MCPServerConfig{{ID: "x", Transport: "ws", URL: "ws://x"}} }},
		{"zero interval", func(c *Config) { c.Session.CheckIntervalMs = 0 }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("OTCHAT_TEST_DIR", "chats")

	if got := ExpandPath("~/data"); got != filepath.Clean("/home/tester/data") {
		t.Errorf("ExpandPath(~/data) = %q", got)
	}
	if got := ExpandPath("/var/$OTCHAT_TEST_DIR/"); got != filepath.Clean("/var/chats") {
		t.Errorf("ExpandPath env = %q", got)
	}
	if ExpandPath("") != "" {
		t.Error("empty path should stay empty")
	}
}
