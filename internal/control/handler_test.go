package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
	"screen-recorder/internal/metrics"
	"screen-recorder/internal/session"
	"screen-recorder/internal/session/sessiontest"
	"screen-recorder/internal/storage"
)

type testEnv struct {
	ctrl    *session.Controller
	picker  *sessiontest.Picker
	factory *sessiontest.Factory
	router  *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	picker := sessiontest.NewPicker()
	factory := sessiontest.NewFactory()
	ctrl := session.NewController(
		session.Deps{Picker: picker, Recorders: factory, Storage: storage.NewWriter(t.TempDir())},
		session.WithTickInterval(0),
		session.WithIDGenerator(func() string { return "sess-1" }),
	)
	log := logger.Discard()
	return &testEnv{
		ctrl:    ctrl,
		picker:  picker,
		factory: factory,
		router:  NewRouter(NewHandler(ctrl, log), metrics.New(), log),
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) domain.ViewState {
	t.Helper()
	var view domain.ViewState
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v (body %q)", err, rec.Body.String())
	}
	return view
}

func TestHandler_State_idle(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	view := decodeView(t, rec)
	if view.State != domain.SessionStateIdle {
		t.Errorf("expected idle, got %s", view.State)
	}
	if view.Controls.Start || view.Controls.Stop {
		t.Errorf("start and stop must be disabled when idle: %+v", view.Controls)
	}
	if view.Timer != session.ZeroElapsed {
		t.Errorf("expected zero timer, got %q", view.Timer)
	}
}

func TestHandler_Sources(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sources []domain.CaptureSource
	if err := json.Unmarshal(rec.Body.Bytes(), &sources); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != sessiontest.Screen.ID {
		t.Errorf("unexpected sources: %+v", sources)
	}
}

func TestHandler_Sources_unavailable(t *testing.T) {
	env := newTestEnv(t)
	env.picker.ListErr = fmt.Errorf("%w: xrandr: not found", capture.ErrCaptureUnavailable)
	rec := env.do(http.MethodGet, "/api/sources", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandler_SelectSource(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	if view.State != domain.SessionStateSourceSelected {
		t.Errorf("expected source_selected, got %s", view.State)
	}
	if view.SourceLabel != "Selected: "+sessiontest.Screen.Name {
		t.Errorf("unexpected label %q", view.SourceLabel)
	}
	if !view.Previews.Screen {
		t.Error("expected screen preview bound")
	}
}

func TestHandler_SelectSource_bad_request(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"not json", `{}`} {
		rec := env.do(http.MethodPost, "/api/source", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_SelectSource_unknown(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:9"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_SelectSource_capture_failed(t *testing.T) {
	env := newTestEnv(t)
	env.picker.SelectErr = fmt.Errorf("%w: probe exited 1", capture.ErrCaptureFailed)
	rec := env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:0"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if env.ctrl.View().State != domain.SessionStateIdle {
		t.Errorf("failed selection must keep idle state")
	}
}

func TestHandler_Start_without_source_conflict(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestHandler_Webcam_toggle(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPut, "/api/webcam", `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !decodeView(t, rec).WebcamEnabled {
		t.Error("expected webcam toggle on")
	}

	rec = env.do(http.MethodPut, "/api/webcam", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing enabled, got %d", rec.Code)
	}
}

func TestHandler_Record_flow(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:0"}`)
	env.do(http.MethodPut, "/api/webcam", `{"enabled":true}`)

	rec := env.do(http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	if view.State != domain.SessionStateRecording || !view.Controls.Stop || view.Controls.Start {
		t.Fatalf("unexpected view while recording: %+v", view)
	}

	if rec := env.do(http.MethodPost, "/api/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPut, "/api/webcam", `{"enabled":false}`); rec.Code != http.StatusConflict {
		t.Errorf("toggle while recording: expected 409, got %d", rec.Code)
	}

	env.factory.Recorder(domain.ModalityScreen).Emit([]byte("screen"))
	env.factory.Recorder(domain.ModalityWebcam).Emit([]byte("webcam"))

	done, cancel := sessiontest.Await(env.ctrl.Events(), session.EventTypeCompleted)
	defer cancel()
	rec = env.do(http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop: expected 202, got %d", rec.Code)
	}

	select {
	case ev := <-done:
		if !strings.HasPrefix(ev.Message, "Recording saved to: ") {
			t.Errorf("unexpected completion message %q", ev.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not complete")
	}

	if rec := env.do(http.MethodPost, "/api/stop", ""); rec.Code != http.StatusAccepted {
		t.Errorf("stop when idle must be a no-op, got %d", rec.Code)
	}
	if got := env.ctrl.View().State; got != domain.SessionStateIdle {
		t.Errorf("expected idle after completion, got %s", got)
	}
}

func TestHandler_Preview(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(http.MethodGet, "/api/preview/screen", ""); rec.Code != http.StatusNotFound {
		t.Errorf("no stream bound: expected 404, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/preview/desk", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown modality: expected 404, got %d", rec.Code)
	}

	env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:0"}`)
	rec := env.do(http.MethodGet, "/api/preview/screen", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "jpeg-screen" {
		t.Errorf("unexpected frame %q", rec.Body.String())
	}
}

func TestHandler_Events_since(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/source", `{"id":"x11:screen:0"}`)

	rec := env.do(http.MethodGet, "/api/events", "")
	var all []session.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected at least one status event")
	}

	last := all[len(all)-1].Seq
	rec = env.do(http.MethodGet, fmt.Sprintf("/api/events?since=%d", last), "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/api/events?since=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_EventsSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := env.ctrl.SelectSource(context.Background(), sessiontest.Screen); err != nil {
		t.Fatalf("select: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != session.EventTypeStatus || ev.State != domain.SessionStateSourceSelected {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestHandler_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/start", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "screenrec_http_errors_total 1") {
		t.Errorf("expected one counted error, got:\n%s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrSessionActive, http.StatusConflict},
		{fmt.Errorf("wrap: %w", session.ErrNoSourceSelected), http.StatusConflict},
		{session.ErrControlDisabled, http.StatusConflict},
		{capture.ErrCaptureUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: start screen recorder: boom", capture.ErrCaptureFailed), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
