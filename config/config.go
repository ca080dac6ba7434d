package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Storage backends selectable with the top-level storage key.
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
	StorageMemory = "memory"
)

type SessionConfig struct {
	CheckIntervalMs int  `toml:"check_interval_ms"`
	MaxRetries      int  `toml:"max_retries"`
	MaxToolRounds   int  `toml:"max_tool_rounds"`
	MaxUphurrySteps int  `toml:"max_uphurry_steps"`
	Fallback        bool `toml:"fallback"`
}

type MemoryConfig struct {
	Enabled bool `toml:"enabled"`
}

// Settings mirrors settings.toml.
type Settings struct {
	DataDirectory       string            `toml:"data_directory"`
	Storage             string            `toml:"storage"`
	DefaultSystemPrompt string            `toml:"default_system_prompt,omitempty"`
	Session             SessionConfig     `toml:"session"`
	Memory              MemoryConfig      `toml:"memory"`
	Models              []ModelConfig     `toml:"models"`
	MCPServers          []MCPServerConfig `toml:"mcp_servers"`
}

type Config struct {
	DataDirectory       string
	Storage             string
	DefaultSystemPrompt string
	Session             SessionConfig
	Memory              MemoryConfig
	Models              []ModelConfig
	MCPServers          []MCPServerConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	if c.DataDirectory == "" {
		return GetDefaultDataDir()
	}
	return ExpandPath(c.DataDirectory)
}

// CheckInterval is the period of the session manager's background driver.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Session.CheckIntervalMs) * time.Millisecond
}

// Model returns the configured model with the given id.
func (c *Config) Model(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// ModelChain returns the fallback chain starting at the model with the given
// id, followed by the remaining models in configuration order. An empty id
// starts at the first configured model.
func (c *Config) ModelChain(firstID string) ([]ModelConfig, error) {
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("no models configured in %s", GetSettingsFilePath())
	}
	if firstID == "" {
		firstID = c.Models[0].ID
	}
	first, ok := c.Model(firstID)
	if !ok {
		return nil, fmt.Errorf("unknown model id %q", firstID)
	}
	chain := []ModelConfig{first}
	if !c.Session.Fallback {
		return chain, nil
	}
	for _, m := range c.Models {
		if m.ID != firstID {
			chain = append(chain, m)
		}
	}
	return chain, nil
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("OTCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if storage := os.Getenv("OTCHAT_STORAGE"); storage != "" {
		c.Storage = storage
	}
}

func CheckDebug() bool {
	debug := os.Getenv("OTCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and tool output end up in the log
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (OTCHAT_DEBUG=%s) ===", os.Getenv("OTCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml (creating it from the template on first run),
// applies environment overrides and prepares the data directory.
func Load() (*Config, error) {
	return LoadFrom(GetSettingsFilePath())
}

// LoadFrom is Load with an explicit settings path.
func LoadFrom(settingsPath string) (*Config, error) {
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := &Config{
		DataDirectory:       settings.DataDirectory,
		Storage:             settings.Storage,
		DefaultSystemPrompt: settings.DefaultSystemPrompt,
		Session:             settings.Session,
		Memory:              settings.Memory,
		Models:              settings.Models,
		MCPServers:          settings.MCPServers,
	}
	cfg.applyEnvOverrides()

	for i := range cfg.Models {
		cfg.Models[i].APIKey = os.ExpandEnv(cfg.Models[i].APIKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}

// Validate checks storage, session limits and model definitions.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageSQLite, StorageJSON, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want sqlite, json or memory)", c.Storage)
	}
	if c.Session.CheckIntervalMs <= 0 {
		return fmt.Errorf("session.check_interval_ms must be positive")
	}
	if c.Session.MaxRetries < 0 || c.Session.MaxToolRounds <= 0 || c.Session.MaxUphurrySteps <= 0 {
		return fmt.Errorf("session limits must be positive")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if seen[m.ID] {
			return fmt.Errorf("models[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
	}

	for i, s := range c.MCPServers {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("mcp_servers[%d]: %w", i, err)
		}
	}
	return nil
}
