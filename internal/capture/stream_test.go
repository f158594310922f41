package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"screen-recorder/internal/domain"
)

func TestStreamReleaseIsIdempotent(t *testing.T) {
	s := NewStream(domain.ModalityWebcam, domain.CaptureSource{ID: "webcam"}, []string{"-i", "x"}, jpegFrame)
	calls := 0
	s.OnRelease(func() { calls++ })

	assert.True(t, s.Release())
	assert.False(t, s.Release())
	assert.True(t, s.Released())
	assert.Equal(t, 1, calls)
	assert.Nil(t, s.PreviewImage())
}

func TestStreamOnReleaseAfterRelease(t *testing.T) {
	s := NewStream(domain.ModalityScreen, domain.CaptureSource{ID: "x"}, nil, nil)
	s.Release()

	ran := false
	s.OnRelease(func() { ran = true })
	assert.True(t, ran)
}

func TestStreamSetPreviewStopsAtRelease(t *testing.T) {
	s := NewStream(domain.ModalityScreen, domain.CaptureSource{ID: "x"}, nil, jpegFrame)
	s.SetPreview([]byte("fresh"))
	assert.Equal(t, []byte("fresh"), s.PreviewImage())

	s.Release()
	s.SetPreview([]byte("late"))
	assert.Nil(t, s.PreviewImage())
}
