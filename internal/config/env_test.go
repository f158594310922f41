package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverridesSettings(t *testing.T) {
	t.Setenv("SCREENREC_OUTPUT_DIR", "/tmp/recordings")
	t.Setenv("SCREENREC_FRAME_RATE", "15")
	t.Setenv("SCREENREC_MIC_DEVICE", "alsa_input.usb")
	t.Setenv("SCREENREC_WEBCAM", "true")

	got := ApplyEnv(DefaultSettings())
	assert.Equal(t, "/tmp/recordings", got.OutputDir)
	assert.Equal(t, 15, got.FrameRate)
	assert.Equal(t, "alsa_input.usb", got.MicrophoneDevice)
	assert.True(t, got.WebcamEnabled)
	assert.Equal(t, DefaultFFmpegPath, got.FFmpegPath)
}

func TestApplyEnvLeavesUnsetFields(t *testing.T) {
	base := DefaultSettings()
	base.VideoBitrate = "8M"
	assert.Equal(t, base, ApplyEnv(base))
}

func TestLoggingFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	assert.Equal(t, Logging{Level: "info", Format: "text"}, LoggingFromEnv())

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	assert.Equal(t, Logging{Level: "debug", Format: "json"}, LoggingFromEnv())
}
