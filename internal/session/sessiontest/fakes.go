// Package sessiontest provides in-memory capture and recorder fakes for
// driving a session.Controller without ffmpeg or real devices.
package sessiontest

import (
	"context"
	"sync"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/recorder"
	"screen-recorder/internal/session"
)

// Screen is the single source listed by Picker.
var Screen = domain.CaptureSource{ID: "x11:screen:0", Name: "Screen 1 (eDP-1)", Kind: domain.SourceKindScreen}

// Picker lists Screen and hands out streams whose releases it counts.
type Picker struct {
	mu        sync.Mutex
	ListErr   error
	SelectErr error
	WebcamErr error
	releases  map[domain.Modality]int
}

// NewPicker returns a picker whose operations all succeed.
func NewPicker() *Picker {
	return &Picker{releases: map[domain.Modality]int{}}
}

func (p *Picker) ListSources(context.Context) ([]domain.CaptureSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return []domain.CaptureSource{Screen}, nil
}

func (p *Picker) Select(_ context.Context, source domain.CaptureSource) (*capture.Stream, error) {
	p.mu.Lock()
	err := p.SelectErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.stream(domain.ModalityScreen, source), nil
}

func (p *Picker) AcquireWebcam(context.Context) (*capture.Stream, error) {
	p.mu.Lock()
	err := p.WebcamErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.stream(domain.ModalityWebcam, domain.CaptureSource{ID: "webcam", Name: "Webcam"}), nil
}

func (p *Picker) stream(m domain.Modality, source domain.CaptureSource) *capture.Stream {
	s := capture.NewStream(m, source, []string{"-i", source.ID}, []byte("jpeg-"+string(m)))
	s.OnRelease(func() {
		p.mu.Lock()
		p.releases[m]++
		p.mu.Unlock()
	})
	return s
}

// Releases reports how many streams of modality m were released.
func (p *Picker) Releases(m domain.Modality) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases[m]
}

// Recorder emits chunks only when told to. With AutoFinish set on its
// factory, Stop ends it cleanly from another goroutine.
type Recorder struct {
	mu         sync.Mutex
	handler    recorder.Handler
	state      recorder.State
	autoFinish bool
	stopCalls  int
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = recorder.StateRecording
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	r.stopCalls++
	auto := r.autoFinish && r.state == recorder.StateRecording
	r.mu.Unlock()
	if auto {
		go r.Finish(nil)
	}
	return nil
}

func (r *Recorder) State() recorder.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Emit delivers chunks in order.
func (r *Recorder) Emit(chunks ...[]byte) {
	for _, chunk := range chunks {
		r.handler.OnData(chunk)
	}
}

// Finish ends the recorder with err, nil meaning a requested stop.
func (r *Recorder) Finish(err error) {
	r.mu.Lock()
	if r.state != recorder.StateRecording {
		r.mu.Unlock()
		return
	}
	r.state = recorder.StateInactive
	r.mu.Unlock()
	r.handler.OnStop(err)
}

// Stops reports how many times Stop was called.
func (r *Recorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// Factory builds Recorders and remembers the latest one per modality.
// NewErr makes New fail for a modality.
type Factory struct {
	mu         sync.Mutex
	AutoFinish bool
	NewErr     map[domain.Modality]error
	recs       map[domain.Modality]*Recorder
}

// NewFactory returns a factory whose recorders finish when stopped.
func NewFactory() *Factory {
	return &Factory{AutoFinish: true, NewErr: map[domain.Modality]error{}, recs: map[domain.Modality]*Recorder{}}
}

func (f *Factory) New(stream *capture.Stream, handler recorder.Handler) (recorder.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.NewErr[stream.Modality]; err != nil {
		return nil, err
	}
	rec := &Recorder{handler: handler, state: recorder.StateInactive, autoFinish: f.AutoFinish}
	f.recs[stream.Modality] = rec
	return rec, nil
}

// Recorder returns the latest recorder built for m, or nil.
func (f *Factory) Recorder(m domain.Modality) *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recs[m]
}

// Await returns a channel receiving the first future event of type typ,
// and a function that unsubscribes.
func Await(bus *session.EventBus, typ session.EventType) (<-chan session.Event, func()) {
	ch := make(chan session.Event, 1)
	var once sync.Once
	cancel := bus.Subscribe(func(ev session.Event) {
		if ev.Type != typ {
			return
		}
		once.Do(func() { ch <- ev })
	})
	return ch, cancel
}
