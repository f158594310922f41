package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-recorder/internal/domain"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/session"
	"screen-recorder/internal/session/sessiontest"
	"screen-recorder/internal/storage"
)

type stubChecker struct {
	runs    int
	reports []domain.DiagnosticReport
}

func (c *stubChecker) Run(domain.Settings) domain.DiagnosticReport {
	report := c.reports[min(c.runs, len(c.reports)-1)]
	c.runs++
	return report
}

type stubFixer struct {
	fixed   []string
	updated domain.Settings
}

func (f *stubFixer) Fix(_ context.Context, id string, settings domain.Settings) (domain.Settings, bool, error) {
	f.fixed = append(f.fixed, id)
	if id == "output_dir" {
		return f.updated, true, nil
	}
	return settings, false, nil
}

type memoryStore struct {
	saved []domain.Settings
}

func (s *memoryStore) Save(cfg domain.Settings) error {
	s.saved = append(s.saved, cfg)
	return nil
}

type env struct {
	deps    *Dependencies
	picker  *sessiontest.Picker
	factory *sessiontest.Factory
	out     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{picker: sessiontest.NewPicker(), factory: sessiontest.NewFactory(), out: t.TempDir()}
	build := func(settings domain.Settings, _ *slog.Logger) session.Deps {
		return session.Deps{Picker: e.picker, Recorders: e.factory, Storage: storage.NewWriter(settings.OutputDir)}
	}
	eng := engine.New(
		domain.Settings{OutputDir: e.out},
		logger.Discard(),
		engine.WithDepsBuilder(build),
		engine.WithSessionOptions(session.WithTickInterval(0), session.WithIDGenerator(func() string { return "sess-1" })),
	)
	e.deps = &Dependencies{Engine: eng, Log: logger.Discard()}
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(e.deps)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSourcesCommand(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, sessiontest.Screen.ID)
	assert.Contains(t, out, sessiontest.Screen.Name)
}

func TestRecordCommandWithDuration(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "record", "--duration", "20ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected: "+sessiontest.Screen.Name)
	assert.Contains(t, out, "Recording stopped")
	assert.Contains(t, out, "Recording saved to: "+filepath.Join(e.out, "sess-1"))

	_, err = os.Stat(filepath.Join(e.out, "sess-1", "screen.webm"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.out, "sess-1", "webcam.webm"))
	assert.True(t, os.IsNotExist(err), "webcam was not requested")
}

func TestRecordCommandWebcamFallsBackToScreenOnly(t *testing.T) {
	e := newEnv(t)
	e.picker.WebcamErr = errors.New("no camera")

	out, err := e.run(t, "record", "--webcam", "--duration", "20ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Webcam unavailable")
	assert.NotContains(t, out, "Webcam recording alongside")
	assert.False(t, e.deps.Engine.Controller().View().WebcamEnabled)
}

func TestRecordCommandUnknownSource(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "record", "--source", "x11:window:0xdead", "--duration", "20ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestSessionsAndInspectCommands(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No recordings found")

	_, err = e.run(t, "record", "--duration", "10ms")
	require.NoError(t, err)

	out, err = e.run(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "screen.webm")

	out, err = e.run(t, "inspect", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "unreadable:", "empty payload is not a container")

	_, err = e.run(t, "inspect", "nope")
	assert.ErrorIs(t, err, engine.ErrRecordingNotFound)
}

func TestDoctorCommand(t *testing.T) {
	e := newEnv(t)
	e.deps.Checker = &stubChecker{reports: []domain.DiagnosticReport{{
		Items: []domain.DiagnosticItem{
			{ID: "tool_ffmpeg", Name: "ffmpeg", Status: domain.DiagnosticStatusPass, Message: "found"},
			{ID: "tool_wmctrl", Name: "wmctrl", Status: domain.DiagnosticStatusWarn, Message: "missing", Hint: "install wmctrl"},
		},
	}}}

	out, err := e.run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "ffmpeg: found")
	assert.Contains(t, out, "install wmctrl")
	assert.Contains(t, out, "All prerequisites met")
}

func TestDoctorCommandFix(t *testing.T) {
	e := newEnv(t)
	failing := domain.DiagnosticReport{
		HasFailures: true,
		Items: []domain.DiagnosticItem{
			{ID: "output_dir", Name: "Output directory", Status: domain.DiagnosticStatusFail, Message: "not writable", Fixable: true},
			{ID: "tool_ffmpeg", Name: "ffmpeg", Status: domain.DiagnosticStatusPass, Message: "found", Fixable: true},
		},
	}
	passing := domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: "output_dir", Name: "Output directory", Status: domain.DiagnosticStatusPass, Message: "writable"},
	}}
	checker := &stubChecker{reports: []domain.DiagnosticReport{failing, failing, passing}}
	newDir := t.TempDir()
	fixer := &stubFixer{updated: domain.Settings{OutputDir: newDir}}
	store := &memoryStore{}
	e.deps.Checker, e.deps.Fixer, e.deps.Store = checker, fixer, store

	_, err := e.run(t, "doctor")
	require.EqualError(t, err, "diagnostics failed")

	out, err := e.run(t, "doctor", "--fix")
	require.NoError(t, err)
	assert.Contains(t, out, "Fixing Output directory")
	assert.Equal(t, []string{"output_dir"}, fixer.fixed)
	require.Len(t, store.saved, 1)
	assert.Equal(t, newDir, e.deps.Engine.Settings().OutputDir)
}

func TestRecordEventsNeverDropCompletion(t *testing.T) {
	events := newRecordEvents(2)
	for i := 0; i < 5; i++ {
		events.deliver(session.Event{Type: session.EventTypeNotification, Message: "notice"})
	}
	events.deliver(session.Event{Type: session.EventTypeTimer})
	events.deliver(session.Event{Type: session.EventTypeCompleted, Path: "/videos/sess-1"})
	events.deliver(session.Event{Type: session.EventTypeCompleted, Path: "/videos/sess-2"})

	assert.Len(t, events.notices, 2)
	require.Len(t, events.completed, 1)
	assert.Equal(t, "/videos/sess-1", (<-events.completed).Path)

	var out bytes.Buffer
	events.drain(NewFormatter(&out))
	assert.Len(t, events.notices, 0)
	assert.Contains(t, out.String(), "notice")
}
