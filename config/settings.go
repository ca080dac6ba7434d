package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadSettings decodes the settings file on top of the defaults. A missing
// file is created from the commented template.
func LoadSettings(settingsPath string) (*Settings, error) {
	cfg := DefaultSettings()

	if !FileExists(settingsPath) {
		if err := CreateDefaultSettings(settingsPath); err != nil {
			return nil, fmt.Errorf("failed to create settings: %w", err)
		}
		cfg.Models = DefaultModels()
		return cfg, nil
	}

	meta, err := toml.DecodeFile(settingsPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 && DebugLog != nil {
		DebugLog.Printf("[Config] Ignoring unknown settings keys: %v", undecoded)
	}

	return cfg, nil
}

func CreateDefaultSettings(settingsPath string) error {
	if err := EnsureDir(filepath.Dir(settingsPath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if FileExists(settingsPath) {
		return nil
	}

	if err := os.WriteFile(settingsPath, []byte(GenerateSettingsTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}
