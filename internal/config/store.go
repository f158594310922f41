package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"screen-recorder/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the settings file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Fields
// absent from the file take their default values.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}

	return Normalize(cfg), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// Normalize trims text fields and fills empty or out-of-range values with
// defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	cfg.FFmpegPath = strings.TrimSpace(cfg.FFmpegPath)
	cfg.VideoBitrate = strings.TrimSpace(cfg.VideoBitrate)
	cfg.WebcamDevice = strings.TrimSpace(cfg.WebcamDevice)
	cfg.MicrophoneDevice = strings.TrimSpace(cfg.MicrophoneDevice)

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.FrameRate <= 0 || cfg.FrameRate > maxFrameRate {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.VideoBitrate == "" {
		cfg.VideoBitrate = DefaultVideoBitrate
	}
	return cfg
}
