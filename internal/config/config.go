// Package config persists user settings between runs. Keys use the
// snake_case form of the command-line flag names so a saved file can be fed
// straight back to the flag parser as defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the saved settings file name.
const FileName = "lumen-config.json"

// SavedConfig is the persisted subset of the runtime settings.
type SavedConfig struct {
	AudioDevice         string  `json:"audio_device,omitempty"`
	NoiseFloor          float64 `json:"noise_floor,omitempty"`
	ChunkSize           int     `json:"chunk_size,omitempty"`
	FPS                 float64 `json:"fps,omitempty"`
	Width               int     `json:"width,omitempty"`
	Height              int     `json:"height,omitempty"`
	SafetyLevel         string  `json:"safety_level,omitempty"`
	EnforceWhenDisabled *bool   `json:"enforce_when_disabled,omitempty"`
	Mode                string  `json:"mode,omitempty"`
	Palette             string  `json:"palette,omitempty"`
	Glyphs              string  `json:"glyphs,omitempty"`
	Quality             string  `json:"quality,omitempty"`
	WebPort             int     `json:"web_port,omitempty"`
}

// DefaultPath returns the settings path next to the binary, or in the home
// directory when the binary location is unknown.
func DefaultPath() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, "."+FileName)
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg SavedConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load reads a saved config. A missing file is returned as an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Load(path string) (SavedConfig, error) {
	var cfg SavedConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
