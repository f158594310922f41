package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"screen-recorder/internal/config"
	"screen-recorder/internal/diagnostics"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/session"
	"screen-recorder/internal/storage"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// RecorderEventName is the runtime event the frontend listens on.
const RecorderEventName = "recorder:event"

const shutdownSaveWindow = 30 * time.Second

// diagnosticsRunner reruns prerequisite checks for the current settings.
type diagnosticsRunner interface {
	Run(settings domain.Settings) domain.DiagnosticReport
}

// diagnosticFixer repairs a single failing diagnostic item.
type diagnosticFixer interface {
	Fix(ctx context.Context, itemID string, settings domain.Settings) (domain.Settings, bool, error)
}

// emitFunc matches wailsruntime.EventsEmit.
type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

// App wires configuration, the recording engine, and UI runtime callbacks.
type App struct {
	Store       config.Store
	Engine      *engine.Engine
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     diagnosticsRunner
	fixer       diagnosticFixer
	log         *slog.Logger
	emit        emitFunc

	mu          sync.Mutex
	runtimeCtx  context.Context
	unsubscribe func()
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	logging := config.LoggingFromEnv()
	log := logger.New(os.Stderr, logging.Level, logging.Format)

	store := config.NewJSONStore(config.DefaultSettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	app := newApp(store, engine.New(settings, log), diagnostics.NewChecker(), diagnostics.NewFixer(log), log)
	app.assets = assets
	return app, nil
}

func newApp(store config.Store, eng *engine.Engine, checker diagnosticsRunner, fixer diagnosticFixer, log *slog.Logger) *App {
	a := &App{
		Store:   store,
		Engine:  eng,
		checker: checker,
		fixer:   fixer,
		log:     log,
		emit:    wailsruntime.EventsEmit,
	}
	if checker != nil {
		a.Diagnostics = checker.Run(eng.Settings())
	}
	a.unsubscribe = eng.Events().Subscribe(a.forwardEvent)
	return a
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Screen Recorder",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown saves any active recording and detaches from the event bus.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveWindow)
	defer cancel()
	if err := a.Engine.Shutdown(ctx); err != nil {
		a.log.Warn("shutdown engine", "error", err)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings returns the settings the engine is running with.
func (a *App) GetSettings() domain.Settings {
	return a.Engine.Settings()
}

// SaveSettings normalizes, applies and persists settings, then refreshes diagnostics.
// Settings cannot change while a recording is in progress.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	applied, err := a.Engine.Apply(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := a.Store.Save(applied); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.runDiagnostics(applied)
	return applied, nil
}

// RefreshDiagnostics reruns dependency checks against current settings.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	return a.runDiagnostics(a.Engine.Settings())
}

// InstallOrFixDiagnostic attempts to repair one failing diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.fixer == nil {
		return a.GetDiagnostics(), diagnostics.ErrUnsupportedFix
	}

	ctx := a.contextOrBackground()
	updated, changed, err := a.fixer.Fix(ctx, itemID, a.Engine.Settings())
	if err != nil {
		return a.RefreshDiagnostics(), err
	}
	if changed {
		if _, err := a.SaveSettings(updated); err != nil {
			return a.GetDiagnostics(), err
		}
		return a.GetDiagnostics(), nil
	}
	return a.RefreshDiagnostics(), nil
}

// ListSources enumerates capturable screens and windows.
func (a *App) ListSources() ([]domain.CaptureSource, error) {
	return a.Engine.Controller().ListSources(a.contextOrBackground())
}

// SelectSource binds the screen preview to source.
func (a *App) SelectSource(source domain.CaptureSource) (domain.ViewState, error) {
	ctrl := a.Engine.Controller()
	err := ctrl.SelectSource(a.contextOrBackground(), source)
	return ctrl.View(), err
}

// SetWebcamEnabled arms or disarms the webcam stream.
func (a *App) SetWebcamEnabled(enabled bool) (domain.ViewState, error) {
	ctrl := a.Engine.Controller()
	err := ctrl.SetWebcamEnabled(enabled)
	return ctrl.View(), err
}

// StartRecording begins a session on the selected source.
func (a *App) StartRecording() (domain.ViewState, error) {
	ctrl := a.Engine.Controller()
	err := ctrl.Start(context.WithoutCancel(a.contextOrBackground()))
	return ctrl.View(), err
}

// StopRecording requests a stop. Completion arrives as a recorder event.
func (a *App) StopRecording() (domain.ViewState, error) {
	ctrl := a.Engine.Controller()
	err := ctrl.Stop()
	return ctrl.View(), err
}

// ViewState returns the current UI projection.
func (a *App) ViewState() domain.ViewState {
	return a.Engine.Controller().View()
}

// PreviewImage returns the bound preview frame as a data URL, or an empty
// string when no stream is bound for modality.
func (a *App) PreviewImage(modality string) string {
	frame := a.Engine.Controller().Preview(domain.Modality(modality))
	if len(frame) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
}

// RecorderEvents returns all events with sequence greater than sinceSeq.
func (a *App) RecorderEvents(sinceSeq int64) []session.Event {
	return a.Engine.Events().Since(sinceSeq)
}

// ListRecordings returns saved sessions, newest first.
func (a *App) ListRecordings() ([]storage.SessionInfo, error) {
	return a.Engine.Recordings()
}

// InspectRecording probes the files of one saved session.
func (a *App) InspectRecording(sessionID string) ([]engine.InspectedFile, error) {
	return a.Engine.Inspect(sessionID)
}

// PickOutputDirectory opens a native directory picker for recordings.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:                "Select recordings directory",
		DefaultDirectory:     a.Engine.Settings().OutputDir,
		CanCreateDirectories: true,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens path in the file manager. An empty path opens the
// last saved session, falling back to the configured output dir.
func (a *App) OpenOutputFolder(path string) error {
	target, err := a.resolveOutputFolder(path)
	if err != nil {
		return err
	}
	return openInFileManager(target)
}

func (a *App) resolveOutputFolder(path string) (string, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Engine.Controller().View().LastSavedDir
	}
	if target == "" {
		target = a.Engine.Settings().OutputDir
	}
	if target == "" {
		return "", errors.New("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	if !info.IsDir() {
		target = filepath.Dir(target)
	}
	return target, nil
}

// forwardEvent pushes bus events to the frontend once the runtime is up.
func (a *App) forwardEvent(ev session.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	emit := a.emit
	a.mu.Unlock()
	if ctx != nil && emit != nil {
		emit(ctx, RecorderEventName, ev)
	}
}

func (a *App) runDiagnostics(settings domain.Settings) domain.DiagnosticReport {
	if a.checker == nil {
		return a.GetDiagnostics()
	}
	report := a.checker.Run(settings)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

func (a *App) contextOrBackground() context.Context {
	if ctx, err := a.runtimeContext(); err == nil {
		return ctx
	}
	return context.Background()
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
