package capture

import (
	"sync"

	"github.com/google/uuid"

	"screen-recorder/internal/domain"
)

// Stream is an acquired capture device handle. It is owned by exactly one
// session stream and must be released when that stream ends.
type Stream struct {
	ID       string
	Modality domain.Modality
	Source   domain.CaptureSource
	// Input holds the ffmpeg input arguments that open the device.
	Input []string
	// Preview is the latest JPEG frame: grabbed while acquiring the device,
	// then refreshed by the recorder.
	Preview  []byte
	HasAudio bool

	mu        sync.Mutex
	released  bool
	onRelease []func()
}

// NewStream builds a stream handle for an acquired device.
func NewStream(modality domain.Modality, source domain.CaptureSource, input []string, preview []byte) *Stream {
	return &Stream{
		ID:       uuid.NewString(),
		Modality: modality,
		Source:   source,
		Input:    append([]string(nil), input...),
		Preview:  preview,
		HasAudio: modality == domain.ModalityWebcam,
	}
}

// OnRelease registers fn to run once when the stream is released. If the
// stream is already released fn runs immediately.
func (s *Stream) OnRelease(fn func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		fn()
		return
	}
	s.onRelease = append(s.onRelease, fn)
	s.mu.Unlock()
}

// Release frees the underlying device. It reports whether this call
// performed the release; later calls are no-ops.
func (s *Stream) Release() bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false
	}
	s.released = true
	hooks := s.onRelease
	s.onRelease = nil
	s.Preview = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

// Released reports whether the device has been released.
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// SetPreview replaces the preview frame. It is ignored once released.
func (s *Stream) SetPreview(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.Preview = frame
}

// PreviewImage returns the bound preview frame, or nil once released.
func (s *Stream) PreviewImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Preview
}
