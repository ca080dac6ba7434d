package config

import (
	"fmt"
	"os"
)

// Backend client types.
const (
	ClientOpenAI     = "openai"
	ClientOpenRouter = "openrouter"
	ClientGemini     = "gemini"
	ClientAnthropic  = "anthropic"
	ClientOllama     = "ollama"
)

// Tool-call conventions. Native uses the backend's structured tool calling;
// fenced asks the model to write ```tool_call blocks in its text.
const (
	ToolCallNative = "native"
	ToolCallFenced = "fenced"
)

// ModelConfig is one entry of the fallback chain.
type ModelConfig struct {
	ID              string `toml:"id"`
	Name            string `toml:"name,omitempty"`
	ClientType      string `toml:"client_type"`
	Endpoint        string `toml:"endpoint,omitempty"`
	APIKey          string `toml:"api_key,omitempty"`
	Model           string `toml:"model"`
	SystemPrompt    string `toml:"system_prompt,omitempty"`
	ToolCallStyle   string `toml:"tool_call_style,omitempty"`
	ContextLength   int    `toml:"context_length,omitempty"`
	MaxOutputTokens int    `toml:"max_output_tokens,omitempty"`
	ThinkOpen       string `toml:"think_open,omitempty"`
	ThinkClose      string `toml:"think_close,omitempty"`
}

// DisplayName returns Name, falling back to the model id.
func (m ModelConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// CallStyle returns the tool-call style with the default applied.
func (m ModelConfig) CallStyle() string {
	if m.ToolCallStyle == "" {
		return ToolCallNative
	}
	return m.ToolCallStyle
}

func (m ModelConfig) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.Model == "" {
		return fmt.Errorf("model %s: model name is required", m.ID)
	}
	switch m.ClientType {
	case ClientOpenAI, ClientOpenRouter, ClientGemini, ClientAnthropic, ClientOllama:
	default:
		return fmt.Errorf("model %s: unknown client_type %q", m.ID, m.ClientType)
	}
	switch m.ToolCallStyle {
	case "", ToolCallNative, ToolCallFenced:
	default:
		return fmt.Errorf("model %s: unknown tool_call_style %q", m.ID, m.ToolCallStyle)
	}
	if m.ThinkClose != "" && m.ThinkOpen == "" {
		return fmt.Errorf("model %s: think_close set without think_open", m.ID)
	}
	return nil
}

// DefaultEndpoint returns the base URL used when Endpoint is empty.
func DefaultEndpoint(clientType string) string {
	switch clientType {
	case ClientOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ClientAnthropic:
		return "https://api.anthropic.com"
	case ClientOpenAI:
		return "https://api.openai.com/v1"
	case ClientGemini:
		return "https://generativelanguage.googleapis.com/v1beta/openai/"
	case ClientOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

// MCP transports.
const (
	MCPStdio = "stdio"
	MCPHTTP  = "http"
	MCPSSE   = "sse"
)

// MCPServerConfig describes an MCP server: a local command spoken to over
// stdio, or a remote URL.
type MCPServerConfig struct {
	ID        string            `toml:"id"`
	Transport string            `toml:"transport,omitempty"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty"`
}

// TransportType returns the transport with the default applied.
func (s MCPServerConfig) TransportType() string {
	if s.Transport == "" {
		return MCPStdio
	}
	return s.Transport
}

func (s MCPServerConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch s.TransportType() {
	case MCPStdio:
		if s.Command == "" {
			return fmt.Errorf("mcp server %s: command is required", s.ID)
		}
	case MCPHTTP, MCPSSE:
		if s.URL == "" {
			return fmt.Errorf("mcp server %s: url is required", s.ID)
		}
	default:
		return fmt.Errorf("mcp server %s: unknown transport %q", s.ID, s.Transport)
	}
	return nil
}

// ExpandedHeaders returns Headers with environment variables expanded.
func (s MCPServerConfig) ExpandedHeaders() map[string]string {
	if len(s.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	return headers
}

// EnvList renders Env as KEY=VALUE pairs.
func (s MCPServerConfig) EnvList() []string {
	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}
