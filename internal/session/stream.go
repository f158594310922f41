package session

import (
	"bytes"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/recorder"
)

// StreamState is one modality's record-and-accumulate state. It is not
// safe for concurrent use; the controller guards it with its state mutex.
type StreamState struct {
	Modality domain.Modality

	status   domain.StreamStatus
	chunks   [][]byte
	size     int
	stream   *capture.Stream
	recorder recorder.Recorder
	released bool
	saveErr  error
}

// NewStreamState returns a stream state bound to an acquired device.
func NewStreamState(modality domain.Modality, stream *capture.Stream) *StreamState {
	status := domain.StreamStatusIdle
	if stream != nil {
		status = domain.StreamStatusCapturing
	}
	return &StreamState{Modality: modality, status: status, stream: stream}
}

// Status returns the lifecycle status.
func (s *StreamState) Status() domain.StreamStatus {
	return s.status
}

// SetStatus moves the stream to status. Flushed is terminal.
func (s *StreamState) SetStatus(status domain.StreamStatus) {
	if s.status == domain.StreamStatusFlushed {
		return
	}
	s.status = status
}

// Append stores chunk in arrival order. Empty chunks and chunks arriving
// after the flush are ignored; Append reports whether chunk was kept.
func (s *StreamState) Append(chunk []byte) bool {
	if len(chunk) == 0 || s.status == domain.StreamStatusFlushed {
		return false
	}
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
	return true
}

// Payload concatenates the buffered chunks in append order.
func (s *StreamState) Payload() []byte {
	return bytes.Join(s.chunks, nil)
}

// Size is the number of buffered bytes.
func (s *StreamState) Size() int {
	return s.size
}

// Chunks is the number of buffered chunks.
func (s *StreamState) Chunks() int {
	return len(s.chunks)
}

// MarkFlushed records the save outcome and drops the buffered chunks.
func (s *StreamState) MarkFlushed(saveErr error) {
	s.status = domain.StreamStatusFlushed
	s.saveErr = saveErr
	s.chunks = nil
}

// Flushed reports whether the stream has been saved or abandoned.
func (s *StreamState) Flushed() bool {
	return s.status == domain.StreamStatusFlushed
}

// SaveErr returns the save failure, if any.
func (s *StreamState) SaveErr() error {
	return s.saveErr
}

// ReleaseDevice releases the bound device once. Later calls do nothing
// and report false.
func (s *StreamState) ReleaseDevice() bool {
	if s.released || s.stream == nil {
		return false
	}
	s.released = true
	return s.stream.Release()
}

// Stream returns the bound device handle.
func (s *StreamState) Stream() *capture.Stream {
	return s.stream
}
