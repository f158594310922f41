package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"screen-recorder/internal/command"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
)

const (
	defaultFrameRate = 30
	probeTimeout     = 15 * time.Second
	listTimeout      = 10 * time.Second
)

// Options configures device access for one picker.
type Options struct {
	FFmpegPath       string
	FrameRate        int
	WebcamDevice     string
	MicrophoneDevice string
	// Display is the X11 display used on linux; defaults to $DISPLAY.
	Display string
}

// OptionsFromSettings maps persisted settings to picker options.
func OptionsFromSettings(settings domain.Settings) Options {
	return Options{
		FFmpegPath:       settings.FFmpegPath,
		FrameRate:        settings.FrameRate,
		WebcamDevice:     settings.WebcamDevice,
		MicrophoneDevice: settings.MicrophoneDevice,
	}
}

// sourceEntry pairs an enumerated source with the ffmpeg input opening it.
type sourceEntry struct {
	source domain.CaptureSource
	input  []string
}

// backend is one OS-specific enumeration and device-addressing strategy.
type backend interface {
	listSources(ctx context.Context) ([]sourceEntry, error)
	webcamInput(ctx context.Context) ([]string, error)
}

// Picker enumerates capturable sources and acquires streams from them.
type Picker struct {
	ffmpegPath string
	runner     command.Runner
	backend    backend
	log        *slog.Logger

	mu    sync.Mutex
	known map[string]sourceEntry
}

// NewPicker builds a picker for the current OS using real processes.
func NewPicker(log *slog.Logger, opts Options) *Picker {
	return newPicker(command.ExecRunner{}, goruntime.GOOS, log, opts)
}

// NewPickerForTests builds a picker with an injected runner and OS name.
func NewPickerForTests(runner command.Runner, goos string, opts Options) *Picker {
	return newPicker(runner, goos, logger.Discard(), opts)
}

func newPicker(runner command.Runner, goos string, log *slog.Logger, opts Options) *Picker {
	opts = normalizeOptions(opts)
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "capture")

	var b backend
	switch goos {
	case "darwin":
		b = &avfoundationBackend{runner: runner, opts: opts}
	case "windows":
		b = &gdigrabBackend{runner: runner, opts: opts, log: log}
	default:
		b = &x11Backend{runner: runner, opts: opts, log: log}
	}

	return &Picker{
		ffmpegPath: opts.FFmpegPath,
		runner:     runner,
		backend:    b,
		log:        log,
		known:      map[string]sourceEntry{},
	}
}

func normalizeOptions(opts Options) Options {
	opts.FFmpegPath = strings.TrimSpace(opts.FFmpegPath)
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	opts.WebcamDevice = strings.TrimSpace(opts.WebcamDevice)
	opts.MicrophoneDevice = strings.TrimSpace(opts.MicrophoneDevice)
	if opts.Display == "" {
		opts.Display = os.Getenv("DISPLAY")
	}
	if opts.Display == "" {
		opts.Display = ":0"
	}
	return opts
}

// ListSources enumerates capturable screens and windows.
func (p *Picker) ListSources(ctx context.Context) ([]domain.CaptureSource, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	entries, err := p.backend.listSources(ctx)
	if err != nil {
		p.log.Warn("source enumeration failed", "error", err)
		return nil, err
	}
	if len(entries) == 0 {
		return nil, unavailable("no capturable screens or windows found", command.Log{}, nil)
	}

	known := make(map[string]sourceEntry, len(entries))
	sources := make([]domain.CaptureSource, 0, len(entries))
	for _, entry := range entries {
		known[entry.source.ID] = entry
		sources = append(sources, entry.source)
	}

	p.mu.Lock()
	p.known = known
	p.mu.Unlock()

	p.log.Debug("sources enumerated", "count", len(sources))
	return sources, nil
}

// Select opens a capture stream bound to source.ID. The grabbed frame is
// bound to the stream as its live preview.
func (p *Picker) Select(ctx context.Context, source domain.CaptureSource) (*Stream, error) {
	p.mu.Lock()
	entry, ok := p.known[source.ID]
	p.mu.Unlock()
	if !ok {
		return nil, failed(fmt.Sprintf("source is no longer available: %s", source.ID), command.Log{}, nil)
	}

	preview, err := p.probe(ctx, entry.input)
	if err != nil {
		return nil, err
	}

	p.log.Info("screen source acquired", "source_id", entry.source.ID, "name", entry.source.Name)
	return NewStream(domain.ModalityScreen, entry.source, entry.input, preview), nil
}

// AcquireWebcam opens the camera and microphone as one stream.
func (p *Picker) AcquireWebcam(ctx context.Context) (*Stream, error) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	input, err := p.backend.webcamInput(listCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	preview, err := p.probe(ctx, input)
	if err != nil {
		return nil, err
	}

	source := domain.CaptureSource{ID: "webcam", Name: "Webcam"}
	p.log.Info("webcam acquired")
	return NewStream(domain.ModalityWebcam, source, input, preview), nil
}

// probe opens the device long enough to grab one JPEG frame.
func (p *Picker) probe(ctx context.Context, input []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := buildProbeArgs(input)
	res, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	log := command.NewLog(p.ffmpegPath, args, res, true)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, failed("timed out opening capture device", log, err)
		}
		return nil, failed("cannot open capture device", log, err)
	}
	if len(res.Stdout) == 0 {
		return nil, failed("capture device produced no frames", log, nil)
	}
	return res.Stdout, nil
}

// buildProbeArgs grabs a single video frame as mjpeg on stdout.
func buildProbeArgs(input []string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"pipe:1",
	)
}
