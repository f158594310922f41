package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/config"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/recorder"
	"screen-recorder/internal/session"
	"screen-recorder/internal/storage"
)

// ErrRecordingNotFound is returned when a saved session ID is unknown.
var ErrRecordingNotFound = errors.New("recording not found")

// DepsBuilder turns settings into the collaborators a controller drives.
type DepsBuilder func(settings domain.Settings, log *slog.Logger) session.Deps

// DefaultDeps wires ffmpeg-backed capture and recording with a disk writer.
func DefaultDeps(settings domain.Settings, log *slog.Logger) session.Deps {
	return session.Deps{
		Picker:    capture.NewPicker(log, capture.OptionsFromSettings(settings)),
		Recorders: recorder.NewFFmpegFactory(recorder.ConfigFromSettings(settings, log)),
		Storage:   storage.NewWriter(settings.OutputDir),
	}
}

// Option customizes an engine.
type Option func(*Engine)

// WithDepsBuilder replaces DefaultDeps.
func WithDepsBuilder(build DepsBuilder) Option {
	return func(e *Engine) {
		if build != nil {
			e.build = build
		}
	}
}

// WithSessionOptions passes options through to the controller.
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) { e.sessionOpts = append(e.sessionOpts, opts...) }
}

// Engine owns the session controller and rebuilds its collaborators when
// settings change. Shells (desktop, CLI, control API) drive it.
type Engine struct {
	log         *slog.Logger
	build       DepsBuilder
	sessionOpts []session.Option
	controller  *session.Controller

	mu       sync.RWMutex
	settings domain.Settings
	writer   *storage.Writer
}

// New builds an idle engine from normalized settings.
func New(settings domain.Settings, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	settings = config.Normalize(settings)
	e := &Engine{
		log:      log.With("component", "engine"),
		build:    DefaultDeps,
		settings: settings,
		writer:   storage.NewWriter(settings.OutputDir),
	}
	for _, opt := range opts {
		opt(e)
	}

	sessionOpts := append([]session.Option{
		session.WithLogger(log),
		session.WithWebcamEnabled(settings.WebcamEnabled),
	}, e.sessionOpts...)
	e.controller = session.NewController(e.build(settings, log), sessionOpts...)
	return e
}

// Controller returns the session controller.
func (e *Engine) Controller() *session.Controller {
	return e.controller
}

// Events returns the controller's event bus.
func (e *Engine) Events() *session.EventBus {
	return e.controller.Events()
}

// Settings returns the active settings.
func (e *Engine) Settings() domain.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Apply rebuilds collaborators from settings. It fails with
// session.ErrSessionActive while a session is recording.
func (e *Engine) Apply(settings domain.Settings) (domain.Settings, error) {
	settings = config.Normalize(settings)
	if err := e.controller.Reconfigure(e.build(settings, e.log)); err != nil {
		return domain.Settings{}, err
	}
	if err := e.controller.SetWebcamEnabled(settings.WebcamEnabled); err != nil {
		e.log.Debug("webcam toggle not applied", "error", err)
	}

	e.mu.Lock()
	e.settings = settings
	e.writer = storage.NewWriter(settings.OutputDir)
	e.mu.Unlock()

	e.log.Info("settings applied", "output_dir", settings.OutputDir, "ffmpeg", settings.FFmpegPath)
	return settings, nil
}

// Recordings lists saved sessions under the output directory.
func (e *Engine) Recordings() ([]storage.SessionInfo, error) {
	e.mu.RLock()
	writer := e.writer
	e.mu.RUnlock()
	return writer.ListSessions()
}

// InspectedFile is one probed stream file.
type InspectedFile struct {
	File  storage.FileInfo      `json:"file"`
	Info  storage.ContainerInfo `json:"info"`
	Error string                `json:"error,omitempty"`
}

// Inspect probes every stream file of a saved session.
func (e *Engine) Inspect(sessionID string) ([]InspectedFile, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID != filepath.Base(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrRecordingNotFound, sessionID)
	}
	recordings, err := e.Recordings()
	if err != nil {
		return nil, err
	}
	found, ok := lo.Find(recordings, func(s storage.SessionInfo) bool { return s.ID == sessionID })
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecordingNotFound, sessionID)
	}

	out := make([]InspectedFile, 0, len(found.Files))
	for _, file := range found.Files {
		item := InspectedFile{File: file}
		info, err := storage.ProbeFile(file.Path)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Info = info
		}
		out = append(out, item)
	}
	return out, nil
}

// Close stops any active session and releases devices. It does not wait
// for the recording to be saved; use Shutdown for that.
func (e *Engine) Close() error {
	return e.controller.Close()
}

// Shutdown stops an active session and waits until it has completed or ctx
// ends, then releases devices.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := e.controller.Events().Subscribe(func(ev session.Event) {
		if ev.Type == session.EventTypeCompleted {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	if _, active := e.controller.Session(); active {
		if err := e.controller.Stop(); err != nil {
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			e.log.Warn("recording not saved before shutdown", "error", ctx.Err())
			return fmt.Errorf("waiting for recording to be saved: %w", ctx.Err())
		}
	}
	return e.controller.Close()
}
