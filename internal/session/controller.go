package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/recorder"
)

const (
	defaultSourceLabel  = "Choose Screen/Window"
	defaultTickInterval = time.Second
)

// SourcePicker enumerates sources and acquires capture streams.
type SourcePicker interface {
	ListSources(ctx context.Context) ([]domain.CaptureSource, error)
	Select(ctx context.Context, source domain.CaptureSource) (*capture.Stream, error)
	AcquireWebcam(ctx context.Context) (*capture.Stream, error)
}

// Store persists a flushed stream and returns its folder.
type Store interface {
	Save(data []byte, sessionID, fileName string) (string, error)
}

// Deps are the collaborators a controller drives.
type Deps struct {
	Picker    SourcePicker
	Recorders recorder.Factory
	Storage   Store
}

// Observer receives session measurements.
type Observer interface {
	SessionStarted(webcam bool)
	SessionCompleted(elapsed time.Duration)
	ChunkReceived(modality domain.Modality, size int)
	StreamFlushed(modality domain.Modality, size int, err error)
	OperationFailed(op string)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(bool)                       {}
func (nopObserver) SessionCompleted(time.Duration)            {}
func (nopObserver) ChunkReceived(domain.Modality, int)        {}
func (nopObserver) StreamFlushed(domain.Modality, int, error) {}
func (nopObserver) OperationFailed(string)                    {}

// Option customizes a controller.
type Option func(*Controller)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// WithTickInterval sets the timer refresh cadence. Zero disables the
// background ticker.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithEventBus publishes to an existing bus.
func WithEventBus(bus *EventBus) Option {
	return func(c *Controller) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithWebcamEnabled sets the initial webcam toggle.
func WithWebcamEnabled(enabled bool) Option {
	return func(c *Controller) { c.webcamEnabled = enabled }
}

// Controller drives the recording workflow. User actions are serialized by
// opMu; mu guards state shared with recorder callbacks.
type Controller struct {
	opMu sync.Mutex

	mu      sync.Mutex
	deps    Deps
	manager *Manager
	bus     *EventBus
	pending []Event

	log          *slog.Logger
	observer     Observer
	now          func() time.Time
	newID        func() string
	tickInterval time.Duration

	webcamEnabled bool
	selected      *domain.CaptureSource
	screen        *capture.Stream
	webcam        *capture.Stream

	generation uint64
	streams    map[domain.Modality]*StreamState
	barrier    *barrier
	startedAt  time.Time
	elapsed    string
	ticker     *ticker
	savedDirs  []string
	lastSaved  string
}

// NewController builds an idle controller.
func NewController(deps Deps, opts ...Option) *Controller {
	c := &Controller{
		deps:         deps,
		manager:      NewManager(),
		bus:          NewEventBus(500),
		log:          logger.Discard(),
		observer:     nopObserver{},
		now:          time.Now,
		newID:        uuid.NewString,
		tickInterval: defaultTickInterval,
		elapsed:      ZeroElapsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "session")
	return c
}

// Events returns the controller's event bus.
func (c *Controller) Events() *EventBus {
	return c.bus
}

// unlock releases mu and publishes events queued while it was held.
func (c *Controller) unlock() {
	events := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ev := range events {
		c.bus.Publish(ev)
	}
}

func (c *Controller) queue(ev Event) {
	if ev.SessionID == "" {
		if sess, ok := c.manager.Session(); ok {
			ev.SessionID = sess.ID
		}
	}
	c.pending = append(c.pending, ev)
}

func (c *Controller) queueStatus() {
	c.queue(Event{Type: EventTypeStatus, State: c.manager.State()})
}

func (c *Controller) queueNotice(level Level, modality domain.Modality, message string) {
	typ := EventTypeNotification
	if level == LevelError {
		typ = EventTypeError
	}
	c.queue(Event{Type: typ, Level: level, Modality: modality, Message: message})
}

func (c *Controller) transition(to domain.SessionState) {
	from := c.manager.State()
	if err := c.manager.Transition(to); err != nil {
		c.log.Error("state transition rejected", "from", from, "to", to, "error", err)
		return
	}
	if from != to {
		c.log.Debug("state changed", "from", from, "to", to)
		c.queueStatus()
	}
}

// ListSources enumerates capturable screens and windows.
func (c *Controller) ListSources(ctx context.Context) ([]domain.CaptureSource, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if !controlsFor(c.manager.State()).PickSource {
		c.unlock()
		return nil, ErrControlDisabled
	}
	picker := c.deps.Picker
	c.unlock()

	sources, err := picker.ListSources(ctx)
	if err != nil {
		c.fail("list_sources", "", fmt.Sprintf("Cannot list capture sources: %v", err))
		return nil, err
	}
	return sources, nil
}

// SelectSource acquires source and binds its preview. On failure the prior
// selection is kept.
func (c *Controller) SelectSource(ctx context.Context, source domain.CaptureSource) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if !controlsFor(c.manager.State()).PickSource {
		c.unlock()
		return ErrControlDisabled
	}
	picker := c.deps.Picker
	c.unlock()

	stream, err := picker.Select(ctx, source)
	if err != nil {
		c.fail("select_source", domain.ModalityScreen, fmt.Sprintf("Cannot capture %q: %v", source.Name, err))
		return err
	}

	c.mu.Lock()
	defer c.unlock()
	releaseIfHeld(c.screen)
	c.screen = stream
	selected := stream.Source
	if selected.Name == "" {
		selected.Name = source.Name
	}
	c.selected = &selected
	c.log.Info("source selected", "source_id", selected.ID, "name", selected.Name)
	if c.manager.State() == domain.SessionStateSourceSelected {
		c.queueStatus()
	}
	c.transition(domain.SessionStateSourceSelected)
	return nil
}

// SetWebcamEnabled flips the webcam toggle outside a session.
func (c *Controller) SetWebcamEnabled(enabled bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.unlock()
	if !controlsFor(c.manager.State()).WebcamToggle {
		return ErrControlDisabled
	}
	if c.webcamEnabled != enabled {
		c.webcamEnabled = enabled
		c.queueStatus()
	}
	return nil
}

// Start begins a session from the selected source. The webcam joins only
// if the toggle is on and the camera can be acquired.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.manager.IsActive() {
		c.unlock()
		return ErrSessionActive
	}
	if c.manager.State() != domain.SessionStateSourceSelected || c.screen == nil {
		c.unlock()
		return ErrNoSourceSelected
	}
	wantWebcam := c.webcamEnabled
	picker := c.deps.Picker
	c.unlock()

	var webcam *capture.Stream
	if wantWebcam {
		stream, err := picker.AcquireWebcam(ctx)
		c.mu.Lock()
		if err != nil {
			c.webcamEnabled = false
			c.log.Warn("webcam unavailable; recording screen only", "error", err)
			c.observer.OperationFailed("acquire_webcam")
			c.queueNotice(LevelWarning, domain.ModalityWebcam, fmt.Sprintf("Webcam unavailable, recording screen only: %v", err))
			c.queueStatus()
		} else {
			webcam = stream
			c.webcam = stream
			c.transition(domain.SessionStateWebcamArmed)
		}
		c.unlock()
	}

	c.mu.Lock()
	defer c.unlock()
	return c.beginLocked(webcam)
}

// beginLocked starts one recorder per armed stream and installs the
// session. Recorder callbacks block on mu until it is fully installed.
func (c *Controller) beginLocked(webcam *capture.Stream) error {
	if c.manager.IsActive() {
		c.releaseWebcamLocked()
		return ErrSessionActive
	}

	c.generation++
	gen := c.generation
	streams := map[domain.Modality]*StreamState{}

	screenState := NewStreamState(domain.ModalityScreen, c.screen)
	if err := c.startRecorderLocked(gen, screenState); err != nil {
		c.generation++
		c.releaseWebcamLocked()
		c.transition(domain.SessionStateSourceSelected)
		c.observer.OperationFailed("start_recorder")
		c.queueNotice(LevelError, domain.ModalityScreen, fmt.Sprintf("Cannot start screen recording: %v", err))
		return fmt.Errorf("%w: start screen recorder: %v", capture.ErrCaptureFailed, err)
	}
	streams[domain.ModalityScreen] = screenState

	if webcam != nil {
		webcamState := NewStreamState(domain.ModalityWebcam, webcam)
		if err := c.startRecorderLocked(gen, webcamState); err != nil {
			c.releaseWebcamLocked()
			c.webcamEnabled = false
			c.log.Warn("webcam recorder unavailable; recording screen only", "error", err)
			c.observer.OperationFailed("start_recorder")
			c.queueNotice(LevelWarning, domain.ModalityWebcam, fmt.Sprintf("Webcam recording unavailable, recording screen only: %v", err))
		} else {
			streams[domain.ModalityWebcam] = webcamState
		}
	}
	hasWebcam := streams[domain.ModalityWebcam] != nil

	sess := domain.Session{
		ID:             c.newID(),
		StartTime:      c.now(),
		ScreenSelected: true,
		WebcamEnabled:  hasWebcam,
	}
	if err := c.manager.Begin(sess); err != nil {
		return err
	}

	modalities := make([]domain.Modality, 0, len(streams))
	for m, st := range streams {
		st.SetStatus(domain.StreamStatusRecording)
		modalities = append(modalities, m)
	}
	c.streams = streams
	c.barrier = newBarrier(modalities...)
	c.savedDirs = nil
	c.startedAt = sess.StartTime
	c.elapsed = ZeroElapsed

	c.transition(domain.SessionStateRecording)
	if c.tickInterval > 0 {
		c.ticker = startTicker(c.tickInterval, c.refreshTimer)
	}

	c.observer.SessionStarted(hasWebcam)
	c.log.Info("recording started", "session_id", sess.ID, "webcam", hasWebcam)
	return nil
}

func (c *Controller) startRecorderLocked(gen uint64, st *StreamState) error {
	modality := st.Modality
	rec, err := c.deps.Recorders.New(st.Stream(), recorder.Handler{
		OnData: func(chunk []byte) { c.onChunk(gen, modality, chunk) },
		OnStop: func(err error) { c.onRecorderStop(gen, modality, err) },
	})
	if err != nil {
		return err
	}
	if err := rec.Start(); err != nil {
		return err
	}
	st.recorder = rec
	return nil
}

func (c *Controller) releaseWebcamLocked() {
	releaseIfHeld(c.webcam)
	c.webcam = nil
}

func releaseIfHeld(stream *capture.Stream) {
	if stream != nil && !stream.Released() {
		stream.Release()
	}
}

// Stop signals every recorder and releases every device. Stopping when not
// recording is a no-op.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.manager.State() != domain.SessionStateRecording {
		c.unlock()
		return nil
	}
	c.transition(domain.SessionStateStopping)
	c.ticker.stop()
	c.ticker = nil
	c.elapsed = FormatElapsed(c.now().Sub(c.startedAt))

	type stopTarget struct {
		modality domain.Modality
		rec      recorder.Recorder
		state    *StreamState
	}
	targets := make([]stopTarget, 0, len(c.streams))
	for m, st := range c.streams {
		if !st.Flushed() {
			st.SetStatus(domain.StreamStatusStopping)
		}
		targets = append(targets, stopTarget{modality: m, rec: st.recorder, state: st})
	}
	c.log.Info("stopping recording", "streams", len(targets))
	c.unlock()

	for _, target := range targets {
		if target.rec != nil && target.rec.State() == recorder.StateRecording {
			if err := target.rec.Stop(); err != nil {
				c.log.Warn("recorder stop failed", "modality", target.modality, "error", err)
			}
		}
		c.mu.Lock()
		target.state.ReleaseDevice()
		c.unlock()
	}
	return nil
}

func (c *Controller) onChunk(gen uint64, modality domain.Modality, chunk []byte) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.generation {
		return
	}
	st := c.streams[modality]
	if st == nil {
		return
	}
	if st.Append(chunk) {
		c.observer.ChunkReceived(modality, len(chunk))
	}
}

// onRecorderStop flushes the stream's chunks and completes the session once
// every armed stream has flushed.
func (c *Controller) onRecorderStop(gen uint64, modality domain.Modality, stopErr error) {
	c.mu.Lock()
	if gen != c.generation {
		c.unlock()
		return
	}
	st := c.streams[modality]
	if st == nil || st.Flushed() {
		c.unlock()
		return
	}
	sess, _ := c.manager.Session()
	expected := st.Status() == domain.StreamStatusStopping
	if !expected {
		st.SetStatus(domain.StreamStatusStopping)
		st.ReleaseDevice()
		c.log.Warn("recorder ended unexpectedly", "modality", modality, "error", stopErr)
		msg := fmt.Sprintf("%s recording ended unexpectedly", modality)
		if stopErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, stopErr)
		}
		c.queueNotice(LevelWarning, modality, msg)
	}
	payload := st.Payload()
	chunks := st.Chunks()
	store := c.deps.Storage
	c.unlock()

	dir, saveErr := store.Save(payload, sess.ID, modality.FileName())

	c.mu.Lock()
	defer c.unlock()
	if gen != c.generation {
		return
	}
	st.MarkFlushed(saveErr)
	c.observer.StreamFlushed(modality, len(payload), saveErr)
	if saveErr != nil {
		c.log.Error("save failed", "session_id", sess.ID, "modality", modality, "error", saveErr)
		c.queueNotice(LevelError, modality, fmt.Sprintf("Could not save %s: %v", modality.FileName(), saveErr))
	} else {
		c.log.Info("stream saved", "session_id", sess.ID, "modality", modality, "dir", dir, "bytes", st.Size(), "chunks", chunks)
		c.savedDirs = append(c.savedDirs, dir)
		c.queue(Event{Type: EventTypeSaved, Modality: modality, Path: dir})
	}

	if c.barrier.done(modality) {
		c.completeLocked(sess)
		return
	}
	c.log.Debug("waiting for streams to flush", "session_id", sess.ID, "remaining", c.barrier.remaining())
}

// completeLocked moves through completed back to idle.
func (c *Controller) completeLocked(sess domain.Session) {
	if c.manager.State() == domain.SessionStateRecording {
		c.ticker.stop()
		c.ticker = nil
		for _, st := range c.streams {
			st.ReleaseDevice()
		}
	}
	c.transition(domain.SessionStateCompleted)

	elapsed := c.now().Sub(c.startedAt)
	c.observer.SessionCompleted(elapsed)
	if len(c.savedDirs) > 0 {
		c.lastSaved = c.savedDirs[len(c.savedDirs)-1]
		c.queue(Event{
			SessionID: sess.ID,
			Type:      EventTypeCompleted,
			Level:     LevelInfo,
			Path:      c.lastSaved,
			Elapsed:   FormatElapsed(elapsed),
			Message:   "Recording saved to: " + c.lastSaved,
		})
	} else {
		c.queue(Event{
			SessionID: sess.ID,
			Type:      EventTypeCompleted,
			Level:     LevelError,
			Elapsed:   FormatElapsed(elapsed),
			Message:   "Recording could not be saved",
		})
	}
	failed := 0
	for _, st := range c.streams {
		if st.SaveErr() != nil {
			failed++
		}
	}
	c.log.Info("session completed", "session_id", sess.ID, "elapsed", elapsed, "saved", len(c.savedDirs), "failed", failed)

	c.resetLocked()
}

// resetLocked restores the pre-session configuration and clears previews.
func (c *Controller) resetLocked() {
	releaseIfHeld(c.screen)
	c.releaseWebcamLocked()
	c.screen = nil
	c.selected = nil
	c.streams = nil
	c.barrier = nil
	c.elapsed = ZeroElapsed
	c.savedDirs = nil
	c.generation++
	c.manager.Reset()
	c.queueStatus()
}

func (c *Controller) refreshTimer() {
	c.mu.Lock()
	defer c.unlock()
	if c.manager.State() != domain.SessionStateRecording {
		return
	}
	c.elapsed = FormatElapsed(c.now().Sub(c.startedAt))
	c.queue(Event{Type: EventTypeTimer, Elapsed: c.elapsed})
}

func (c *Controller) fail(op string, modality domain.Modality, message string) {
	c.mu.Lock()
	defer c.unlock()
	c.observer.OperationFailed(op)
	c.log.Warn("operation failed", "op", op, "message", message)
	c.queueNotice(LevelError, modality, message)
}

// View projects the state machine for UI observers.
func (c *Controller) View() domain.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.manager.State()
	view := domain.ViewState{
		State:         state,
		Controls:      controlsFor(state),
		WebcamEnabled: c.webcamEnabled,
		SourceLabel:   defaultSourceLabel,
		Timer:         c.elapsed,
		LastSavedDir:  c.lastSaved,
		Previews: domain.Previews{
			Screen: c.previewLocked(domain.ModalityScreen) != nil,
			Webcam: c.previewLocked(domain.ModalityWebcam) != nil,
		},
	}
	if c.selected != nil {
		source := *c.selected
		view.SelectedSource = &source
		view.SourceLabel = "Selected: " + source.Name
	}
	if sess, ok := c.manager.Session(); ok {
		view.SessionID = sess.ID
	}
	return view
}

// Preview returns the frame bound to modality's live stream, or nil when
// no stream is bound.
func (c *Controller) Preview(modality domain.Modality) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewLocked(modality)
}

func (c *Controller) previewLocked(modality domain.Modality) []byte {
	var stream *capture.Stream
	switch modality {
	case domain.ModalityScreen:
		stream = c.screen
	case domain.ModalityWebcam:
		stream = c.webcam
	}
	if stream == nil || stream.Released() {
		return nil
	}
	return stream.PreviewImage()
}

// Session returns the active session, if any.
func (c *Controller) Session() (domain.Session, bool) {
	return c.manager.Session()
}

// Reconfigure swaps collaborators outside a session. A selected source is
// dropped because it belongs to the previous picker.
func (c *Controller) Reconfigure(deps Deps) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.unlock()
	if c.manager.IsActive() {
		return ErrSessionActive
	}
	c.deps = deps
	if c.manager.State() == domain.SessionStateSourceSelected {
		releaseIfHeld(c.screen)
		c.screen = nil
		c.selected = nil
		c.transition(domain.SessionStateIdle)
	}
	return nil
}

// Close stops an active session and releases held devices.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.unlock()
	if c.manager.IsActive() {
		return nil
	}
	releaseIfHeld(c.screen)
	c.releaseWebcamLocked()
	return nil
}

// IsSessionError reports whether err is one of the workflow errors.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionActive) || errors.Is(err, ErrNoSourceSelected) || errors.Is(err, ErrControlDisabled)
}
