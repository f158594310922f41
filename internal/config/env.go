package config

import (
	"strings"

	"github.com/spf13/viper"

	"screen-recorder/internal/domain"
)

// EnvPrefix prefixes every settings override variable.
const EnvPrefix = "SCREENREC"

// Logging holds logger settings read from LOG_LEVEL and LOG_FORMAT.
type Logging struct {
	Level  string
	Format string
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"output_dir", "ffmpeg", "frame_rate", "video_bitrate", "webcam_device", "mic_device", "webcam"} {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("log_format", "LOG_FORMAT")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	return v
}

// ApplyEnv overlays SCREENREC_* environment variables on cfg.
func ApplyEnv(cfg domain.Settings) domain.Settings {
	v := newEnv()
	if v.IsSet("output_dir") {
		cfg.OutputDir = v.GetString("output_dir")
	}
	if v.IsSet("ffmpeg") {
		cfg.FFmpegPath = v.GetString("ffmpeg")
	}
	if v.IsSet("frame_rate") {
		cfg.FrameRate = v.GetInt("frame_rate")
	}
	if v.IsSet("video_bitrate") {
		cfg.VideoBitrate = v.GetString("video_bitrate")
	}
	if v.IsSet("webcam_device") {
		cfg.WebcamDevice = v.GetString("webcam_device")
	}
	if v.IsSet("mic_device") {
		cfg.MicrophoneDevice = v.GetString("mic_device")
	}
	if v.IsSet("webcam") {
		cfg.WebcamEnabled = v.GetBool("webcam")
	}
	return Normalize(cfg)
}

// LoggingFromEnv reads logger settings.
func LoggingFromEnv() Logging {
	v := newEnv()
	return Logging{Level: v.GetString("log_level"), Format: v.GetString("log_format")}
}
