package recorder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
)

const (
	defaultBitrate   = "2M"
	defaultChunkSize = 64 * 1024
	defaultStopGrace = 5 * time.Second
	webcamAudioBR    = "128k"

	defaultPreviewInterval = time.Second
	previewWidth           = 480
)

// Config controls encoder invocation.
type Config struct {
	FFmpegPath      string
	VideoBitrate    string
	FrameRate       int
	ChunkSize       int
	StopGrace       time.Duration
	// PreviewInterval is how often the encoder refreshes the preview
	// frame. Negative disables the preview output.
	PreviewInterval time.Duration
	PreviewDir      string
	Start           StartFunc
	Logger          *slog.Logger
}

// ConfigFromSettings maps persisted settings to encoder config.
func ConfigFromSettings(settings domain.Settings, log *slog.Logger) Config {
	return Config{
		FFmpegPath:   settings.FFmpegPath,
		VideoBitrate: settings.VideoBitrate,
		FrameRate:    settings.FrameRate,
		Logger:       log,
	}
}

func (c Config) normalized() Config {
	c.FFmpegPath = strings.TrimSpace(c.FFmpegPath)
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	c.VideoBitrate = strings.TrimSpace(c.VideoBitrate)
	if c.VideoBitrate == "" {
		c.VideoBitrate = defaultBitrate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.StopGrace <= 0 {
		c.StopGrace = defaultStopGrace
	}
	if c.PreviewInterval == 0 {
		c.PreviewInterval = defaultPreviewInterval
	}
	if c.PreviewDir == "" {
		c.PreviewDir = os.TempDir()
	}
	if c.Start == nil {
		c.Start = ExecStart
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return c
}

// Factory creates a recorder for an acquired stream.
type Factory interface {
	New(stream *capture.Stream, handler Handler) (Recorder, error)
}

// FFmpegFactory builds FFmpeg recorders from one config.
type FFmpegFactory struct {
	cfg Config
}

// NewFFmpegFactory returns a factory for ffmpeg-backed recorders.
func NewFFmpegFactory(cfg Config) *FFmpegFactory {
	return &FFmpegFactory{cfg: cfg.normalized()}
}

// New implements Factory.
func (f *FFmpegFactory) New(stream *capture.Stream, handler Handler) (Recorder, error) {
	if stream == nil {
		return nil, errors.New("stream is required")
	}
	if len(stream.Input) == 0 {
		return nil, fmt.Errorf("stream %s has no input", stream.ID)
	}
	return NewFFmpeg(f.cfg, stream, handler), nil
}

// FFmpeg encodes a stream to webm on stdout and emits each read as a chunk.
// While recording it also keeps the stream's preview frame fresh.
type FFmpeg struct {
	cfg         Config
	args        []string
	handler     Handler
	log         *slog.Logger
	stream      *capture.Stream
	previewPath string

	mu       sync.Mutex
	state    State
	stopping bool
	proc     Process
	done     chan struct{}
}

// NewFFmpeg builds a recorder for stream.
func NewFFmpeg(cfg Config, stream *capture.Stream, handler Handler) *FFmpeg {
	cfg = cfg.normalized()
	var previewPath string
	if cfg.PreviewInterval > 0 {
		previewPath = filepath.Join(cfg.PreviewDir, fmt.Sprintf("screenrec-%s-%s.jpg", stream.ID, stream.Modality))
	}
	return &FFmpeg{
		cfg:         cfg,
		args:        BuildArgs(cfg, stream.Modality, stream.Input, stream.HasAudio, previewPath),
		handler:     handler,
		log:         cfg.Logger.With("component", "recorder", "modality", string(stream.Modality)),
		stream:      stream,
		previewPath: previewPath,
		state:       StateInactive,
	}
}

// PreviewPath is where the encoder writes preview frames, or empty when
// the preview output is disabled.
func (r *FFmpeg) PreviewPath() string {
	return r.previewPath
}

// Args returns the ffmpeg arguments used by Start.
func (r *FFmpeg) Args() []string {
	return append([]string(nil), r.args...)
}

// BuildArgs renders the encoder command line for one modality. A non-empty
// previewPath adds a second, low-rate JPEG output that ffmpeg keeps
// overwriting.
func BuildArgs(cfg Config, modality domain.Modality, input []string, hasAudio bool, previewPath string) []string {
	cfg = cfg.normalized()
	args := []string{"-hide_banner", "-loglevel", "error"}
	if previewPath != "" {
		args = append(args, "-y")
	}
	args = append(args, input...)
	args = append(args,
		"-c:v", "libvpx-vp9",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-row-mt", "1",
		"-b:v", cfg.VideoBitrate,
	)
	if cfg.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(cfg.FrameRate))
	}
	if modality == domain.ModalityWebcam && hasAudio {
		args = append(args, "-c:a", "libopus", "-b:a", webcamAudioBR)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-f", "webm", "pipe:1")
	if previewPath == "" {
		return args
	}
	rate := strconv.FormatFloat(1/cfg.PreviewInterval.Seconds(), 'f', -1, 64)
	return append(args,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:-2", rate, previewWidth),
		"-q:v", "5",
		"-update", "1",
		"-f", "image2",
		previewPath,
	)
}

// Start launches the encoder.
func (r *FFmpeg) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil {
		return ErrAlreadyStarted
	}

	proc, err := r.cfg.Start(r.cfg.FFmpegPath, r.args)
	if err != nil {
		return fmt.Errorf("start %s: %w", r.cfg.FFmpegPath, err)
	}
	r.proc = proc
	r.state = StateRecording
	r.done = make(chan struct{})
	r.log.Info("recorder started")

	go r.pump(proc, r.done)
	if r.previewPath != "" {
		go r.watchPreview(r.done)
	}
	return nil
}

// Stop asks ffmpeg to finish the file and kills it after the grace period.
func (r *FFmpeg) Stop() error {
	r.mu.Lock()
	if r.state != StateRecording || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	proc := r.proc
	done := r.done
	r.mu.Unlock()

	stdin := proc.Stdin()
	if _, err := io.WriteString(stdin, "q"); err != nil {
		r.log.Debug("write stop request failed", "error", err)
	}
	_ = stdin.Close()

	go func() {
		select {
		case <-done:
		case <-time.After(r.cfg.StopGrace):
			r.log.Warn("encoder did not exit in time; killing", "grace", r.cfg.StopGrace)
			_ = proc.Kill()
		}
	}()
	return nil
}

// State reports whether the encoder process is still running.
func (r *FFmpeg) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *FFmpeg) pump(proc Process, done chan struct{}) {
	buf := make([]byte, r.cfg.ChunkSize)
	stdout := proc.Stdout()
	for {
		n, err := stdout.Read(buf)
		if n > 0 && r.handler.OnData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.handler.OnData(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug("encoder stdout closed", "error", err)
			}
			break
		}
	}

	waitErr := proc.Wait()

	r.mu.Lock()
	requested := r.stopping
	r.state = StateInactive
	r.mu.Unlock()
	close(done)

	var stopErr error
	switch {
	case requested:
		if waitErr != nil {
			r.log.Debug("encoder exited after stop request", "error", waitErr)
		}
	case waitErr != nil:
		stopErr = fmt.Errorf("%w: %v", ErrUnexpectedExit, waitErr)
	default:
		stopErr = ErrUnexpectedExit
	}
	r.log.Info("recorder stopped", "requested", requested)

	if r.handler.OnStop != nil {
		r.handler.OnStop(stopErr)
	}
}

// watchPreview copies complete frames from the preview file into the
// stream until the encoder exits, then removes the file.
func (r *FFmpeg) watchPreview(done <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.PreviewInterval)
	defer ticker.Stop()
	defer func() {
		if err := os.Remove(r.previewPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Debug("remove preview file", "path", r.previewPath, "error", err)
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			frame, err := os.ReadFile(r.previewPath)
			if err != nil || !isCompleteJPEG(frame) {
				continue
			}
			r.stream.SetPreview(frame)
		}
	}
}

// isCompleteJPEG rejects frames ffmpeg is still writing.
func isCompleteJPEG(frame []byte) bool {
	n := len(frame)
	return n >= 4 && frame[0] == 0xFF && frame[1] == 0xD8 && frame[n-2] == 0xFF && frame[n-1] == 0xD9
}
