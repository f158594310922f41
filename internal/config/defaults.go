package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"screen-recorder/internal/domain"
)

// AppName names the per-user config and output folders.
const AppName = "screen-recorder"

const (
	DefaultFFmpegPath   = "ffmpeg"
	DefaultFrameRate    = 30
	DefaultVideoBitrate = "2M"
	maxFrameRate        = 120
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		OutputDir:    DefaultOutputDir(),
		FFmpegPath:   DefaultFFmpegPath,
		FrameRate:    DefaultFrameRate,
		VideoBitrate: DefaultVideoBitrate,
	}
}

// DefaultOutputDir is $XDG_VIDEOS_DIR/screen-recorder, falling back to the
// home directory when no videos dir is configured.
func DefaultOutputDir() string {
	if videos := xdg.UserDirs.Videos; videos != "" {
		return filepath.Join(videos, AppName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, "Videos", AppName)
}

// DefaultSettingsPath is $XDG_CONFIG_HOME/screen-recorder/settings.json.
func DefaultSettingsPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "settings.json")
}
