package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"screen-recorder/internal/domain"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/session"
	"screen-recorder/internal/session/sessiontest"
	"screen-recorder/internal/storage"
)

// fakeStore records saved settings for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saved    int
}

// Load returns the last saved settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save keeps settings in memory.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saved++
	return nil
}

// fakeChecker counts runs and reports the output dir it was given.
type fakeChecker struct {
	mu   sync.Mutex
	runs int
}

func (c *fakeChecker) Run(settings domain.Settings) domain.DiagnosticReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	return domain.DiagnosticReport{Items: []domain.DiagnosticItem{{
		ID:      "output_dir",
		Status:  domain.DiagnosticStatusPass,
		Message: settings.OutputDir,
	}}}
}

// fakeFixer swaps the output dir when asked to fix it.
type fakeFixer struct {
	outputDir string
}

func (f *fakeFixer) Fix(_ context.Context, itemID string, settings domain.Settings) (domain.Settings, bool, error) {
	switch itemID {
	case "output_dir":
		settings.OutputDir = f.outputDir
		return settings, true, nil
	case "tool_ffmpeg":
		return settings, false, nil
	default:
		return settings, false, errors.New("unsupported")
	}
}

// emitted captures runtime pushes.
type emitted struct {
	mu     sync.Mutex
	names  []string
	events []session.Event
}

func (e *emitted) emit(_ context.Context, name string, data ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	for _, d := range data {
		if ev, ok := d.(session.Event); ok {
			e.events = append(e.events, ev)
		}
	}
}

func (e *emitted) snapshot() ([]string, []session.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...), append([]session.Event(nil), e.events...)
}

type testApp struct {
	*App
	store   *fakeStore
	checker *fakeChecker
	pushes  *emitted
	out     string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	out := t.TempDir()
	picker := sessiontest.NewPicker()
	factory := sessiontest.NewFactory()
	build := func(settings domain.Settings, _ *slog.Logger) session.Deps {
		return session.Deps{Picker: picker, Recorders: factory, Storage: storage.NewWriter(settings.OutputDir)}
	}
	eng := engine.New(
		domain.Settings{OutputDir: out},
		logger.Discard(),
		engine.WithDepsBuilder(build),
		engine.WithSessionOptions(session.WithTickInterval(0), session.WithIDGenerator(func() string { return "sess-1" })),
	)

	store := &fakeStore{}
	checker := &fakeChecker{}
	pushes := &emitted{}
	app := newApp(store, eng, checker, &fakeFixer{outputDir: filepath.Join(out, "fixed")}, logger.Discard())
	app.emit = pushes.emit
	t.Cleanup(func() { app.Shutdown(context.Background()) })

	return &testApp{App: app, store: store, checker: checker, pushes: pushes, out: out}
}

func (a *testApp) selectScreen(t *testing.T) {
	t.Helper()
	if _, err := a.SelectSource(sessiontest.Screen); err != nil {
		t.Fatalf("select source: %v", err)
	}
}

func waitForEvent(t *testing.T, ch <-chan session.Event) session.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return session.Event{}
	}
}

// TestRecordingFlowPushesEventsToRuntime checks that bus events reach the frontend.
func TestRecordingFlowPushesEventsToRuntime(t *testing.T) {
	app := newTestApp(t)
	app.Startup(context.Background())
	app.selectScreen(t)

	view, err := app.StartRecording()
	if err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if view.State != domain.SessionStateRecording {
		t.Fatalf("state = %q, want %q", view.State, domain.SessionStateRecording)
	}

	completed, cancel := sessiontest.Await(app.Engine.Events(), session.EventTypeCompleted)
	defer cancel()
	if _, err := app.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	ev := waitForEvent(t, completed)
	want := "Recording saved to: " + filepath.Join(app.out, "sess-1")
	if ev.Message != want {
		t.Fatalf("completed message = %q, want %q", ev.Message, want)
	}

	names, events := app.pushes.snapshot()
	if len(names) == 0 {
		t.Fatal("expected runtime pushes")
	}
	for _, name := range names {
		if name != RecorderEventName {
			t.Fatalf("pushed %q, want %q", name, RecorderEventName)
		}
	}
	assertEventTypeExists(t, events, session.EventTypeStatus)
	assertEventTypeExists(t, events, session.EventTypeCompleted)

	if got := app.RecorderEvents(0); len(got) < len(events) {
		t.Fatalf("history has %d events, pushed %d", len(got), len(events))
	}

	recordings, err := app.ListRecordings()
	if err != nil {
		t.Fatalf("list recordings: %v", err)
	}
	if len(recordings) != 1 || recordings[0].ID != "sess-1" {
		t.Fatalf("recordings = %+v, want sess-1", recordings)
	}
}

// TestEventsAreNotPushedBeforeStartup checks the runtime guard.
func TestEventsAreNotPushedBeforeStartup(t *testing.T) {
	app := newTestApp(t)
	app.selectScreen(t)

	if names, _ := app.pushes.snapshot(); len(names) != 0 {
		t.Fatalf("pushed %d events before startup", len(names))
	}
	if len(app.RecorderEvents(0)) == 0 {
		t.Fatal("expected events in history")
	}
}

// TestSaveSettingsRejectedWhileRecording checks that an active session blocks changes.
func TestSaveSettingsRejectedWhileRecording(t *testing.T) {
	app := newTestApp(t)
	app.selectScreen(t)
	if _, err := app.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}

	_, err := app.SaveSettings(domain.Settings{OutputDir: t.TempDir()})
	if !errors.Is(err, session.ErrSessionActive) {
		t.Fatalf("save error = %v, want %v", err, session.ErrSessionActive)
	}
	if app.store.saved != 0 {
		t.Fatalf("store saved %d times, want 0", app.store.saved)
	}

	completed, cancel := sessiontest.Await(app.Engine.Events(), session.EventTypeCompleted)
	defer cancel()
	if _, err := app.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	waitForEvent(t, completed)
}

// TestSaveSettingsPersistsAndRefreshesDiagnostics checks normalization and reruns.
func TestSaveSettingsPersistsAndRefreshesDiagnostics(t *testing.T) {
	app := newTestApp(t)
	dir := t.TempDir()

	saved, err := app.SaveSettings(domain.Settings{OutputDir: "  " + dir + "  ", WebcamEnabled: true})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if saved.OutputDir != dir {
		t.Fatalf("output dir = %q, want %q", saved.OutputDir, dir)
	}
	if saved.FrameRate == 0 {
		t.Fatal("expected default frame rate")
	}
	if app.store.settings != saved {
		t.Fatalf("stored %+v, want %+v", app.store.settings, saved)
	}
	if got := app.GetSettings(); got != saved {
		t.Fatalf("engine settings = %+v, want %+v", got, saved)
	}
	if !app.ViewState().WebcamEnabled {
		t.Fatal("webcam toggle not applied")
	}
	if msg := app.GetDiagnostics().Items[0].Message; msg != dir {
		t.Fatalf("diagnostics ran against %q, want %q", msg, dir)
	}
}

// TestInstallOrFixDiagnosticSavesChangedSettings checks fixer integration.
func TestInstallOrFixDiagnosticSavesChangedSettings(t *testing.T) {
	app := newTestApp(t)

	report, err := app.InstallOrFixDiagnostic("output_dir")
	if err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	want := filepath.Join(app.out, "fixed")
	if report.Items[0].Message != want {
		t.Fatalf("diagnostics ran against %q, want %q", report.Items[0].Message, want)
	}
	if app.store.saved != 1 {
		t.Fatalf("store saved %d times, want 1", app.store.saved)
	}

	if _, err := app.InstallOrFixDiagnostic("tool_ffmpeg"); err != nil {
		t.Fatalf("fix ffmpeg: %v", err)
	}
	if app.store.saved != 1 {
		t.Fatal("unchanged settings should not be saved")
	}

	if _, err := app.InstallOrFixDiagnostic("unknown"); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

// TestPreviewImageReturnsDataURL checks preview encoding.
func TestPreviewImageReturnsDataURL(t *testing.T) {
	app := newTestApp(t)
	if got := app.PreviewImage(string(domain.ModalityScreen)); got != "" {
		t.Fatalf("preview before selection = %q, want empty", got)
	}

	app.selectScreen(t)
	got := app.PreviewImage(string(domain.ModalityScreen))
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("preview = %q, want data URL", got)
	}
	if app.PreviewImage(string(domain.ModalityWebcam)) != "" {
		t.Fatal("webcam preview should be empty when disarmed")
	}
}

// TestResolveOutputFolder checks fallback and file-to-directory mapping.
func TestResolveOutputFolder(t *testing.T) {
	app := newTestApp(t)

	got, err := app.resolveOutputFolder("")
	if err != nil || got != app.out {
		t.Fatalf("resolve empty = %q, %v; want %q", got, err, app.out)
	}

	file := filepath.Join(app.out, "screen.webm")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err = app.resolveOutputFolder(file)
	if err != nil || got != app.out {
		t.Fatalf("resolve file = %q, %v; want %q", got, err, app.out)
	}

	if _, err := app.resolveOutputFolder(filepath.Join(app.out, "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

// TestInspectRecordingRejectsUnknownSession checks error passthrough.
func TestInspectRecordingRejectsUnknownSession(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.InspectRecording("nope"); !errors.Is(err, engine.ErrRecordingNotFound) {
		t.Fatalf("inspect error = %v, want %v", err, engine.ErrRecordingNotFound)
	}
}

func assertEventTypeExists(t *testing.T, events []session.Event, eventType session.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == eventType {
			return
		}
	}
	t.Fatalf("expected event type %q in %+v", eventType, events)
}
