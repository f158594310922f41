package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
}

func (*bufferCloser) Close() error { return nil }

func buildWebM(t *testing.T, frames int, step int64) []byte {
	t.Helper()
	out := &bufferCloser{}
	writers, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{{
		Name:        "Video",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     "V_VP9",
		TrackType:   1,
		Video: &webm.Video{
			PixelWidth:  1280,
			PixelHeight: 720,
		},
	}})
	require.NoError(t, err)
	require.Len(t, writers, 1)

	for i := 0; i < frames; i++ {
		_, err := writers[0].Write(true, int64(i)*step, []byte{0x82, 0x49, 0x83, byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, writers[0].Close())
	return out.Bytes()
}

func TestProbeReadsTracksAndDuration(t *testing.T) {
	data := buildWebM(t, 4, 33)

	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, "webm", info.DocType)
	require.Len(t, info.Tracks, 1)
	assert.Equal(t, TrackInfo{Number: 1, Type: "video", CodecID: "V_VP9", Width: 1280, Height: 720}, info.Tracks[0])
	assert.GreaterOrEqual(t, info.Clusters, 1)
	assert.Equal(t, 4, info.Blocks)
	assert.Equal(t, 99*time.Millisecond, info.Duration)
}

func TestProbeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.webm")
	require.NoError(t, os.WriteFile(path, buildWebM(t, 2, 40), 0o644))

	info, err := ProbeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, info.Duration)
}

func TestProbeRejectsGarbage(t *testing.T) {
	_, err := Probe([]byte("definitely not webm"))
	assert.Error(t, err)

	_, err = ProbeFile(filepath.Join(t.TempDir(), "missing.webm"))
	assert.Error(t, err)
}
