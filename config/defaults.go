package config

func DefaultSettings() *Settings {
	return &Settings{
		DataDirectory: "~/.local/share/otchat",
		Storage:       StorageSQLite,
		Session: SessionConfig{
			CheckIntervalMs: 5000,
			MaxRetries:      10,
			MaxToolRounds:   25,
			MaxUphurrySteps: 20,
			Fallback:        true,
		},
	}
}

// DefaultModels is used when settings.toml defines no [[models]]. It is kept
// out of DefaultSettings because decoding an array of tables reuses existing
// slice elements.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			ID:         "ollama-llama3.1",
			Name:       "Llama 3.1 (local)",
			ClientType: ClientOllama,
			Endpoint:   "http://localhost:11434",
			Model:      "llama3.1:latest",
		},
	}
}

func GenerateSettingsTemplate() string {
	return `# otchat configuration
# Location: ~/.config/otchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where chats, the database and debug.log are stored
data_directory = "~/.local/share/otchat"

# Chat storage backend: sqlite, json or memory
storage = "sqlite"

# Prompt prepended to every model's own system_prompt (optional)
default_system_prompt = ""

[session]
# How often ongoing chats are re-checked (retries, uphurry continuation)
check_interval_ms = 5000
# Failed checks before a pending request is cancelled
max_retries = 10
# Tool-calling rounds allowed per request
max_tool_rounds = 25
# Autonomous steps allowed per uphurry request
max_uphurry_steps = 20
# Try the next model when one fails
fallback = true

[memory]
# Extract durable facts from your messages and include them in prompts
enabled = false

# Models are tried in order. client_type: openai, openrouter, gemini, anthropic, ollama
# api_key may reference environment variables, e.g. "${OPENAI_API_KEY}"
[[models]]
id = "ollama-llama3.1"
name = "Llama 3.1 (local)"
client_type = "ollama"
endpoint = "http://localhost:11434"
model = "llama3.1:latest"

# [[models]]
# id = "gpt"
# client_type = "openai"
# api_key = "${OPENAI_API_KEY}"
# model = "gpt-4o-mini"
# tool_call_style = "native"   # or "fenced"

# [[models]]
# id = "deepseek"
# client_type = "openrouter"
# api_key = "${OPENROUTER_API_KEY}"
# model = "deepseek/deepseek-r1"
# think_open = "<think>"
# think_close = "</think>"

# MCP servers; their tools become available to models. Local servers are
# launched over stdio, remote ones reached over "http" (streamable) or "sse".
# [[mcp_servers]]
# id = "filesystem"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
#
# [[mcp_servers]]
# id = "search"
# transport = "http"
# url = "https://mcp.example.com/mcp"
# headers = { Authorization = "Bearer ${SEARCH_TOKEN}" }
`
}
