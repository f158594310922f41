package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/at-wat/ebml-go"
)

const defaultTimecodeScale = 1000000

// TrackInfo describes one track of a saved recording.
type TrackInfo struct {
	Number  uint64 `json:"number"`
	Type    string `json:"type"`
	CodecID string `json:"codecId"`
	Width   uint64 `json:"width,omitempty"`
	Height  uint64 `json:"height,omitempty"`
}

// ContainerInfo summarizes a webm file.
type ContainerInfo struct {
	DocType    string        `json:"docType"`
	MuxingApp  string        `json:"muxingApp,omitempty"`
	WritingApp string        `json:"writingApp,omitempty"`
	Tracks     []TrackInfo   `json:"tracks"`
	Clusters   int           `json:"clusters"`
	Blocks     int           `json:"blocks"`
	Duration   time.Duration `json:"duration"`
}

type probeHeader struct {
	DocType string `ebml:"EBMLDocType"`
}

type probeVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type probeTrackEntry struct {
	TrackNumber uint64      `ebml:"TrackNumber"`
	TrackType   uint64      `ebml:"TrackType"`
	CodecID     string      `ebml:"CodecID"`
	Video       *probeVideo `ebml:"Video"`
}

type probeCluster struct {
	Timecode    uint64       `ebml:"Timecode"`
	SimpleBlock []ebml.Block `ebml:"SimpleBlock"`
}

type probeSegment struct {
	Info struct {
		TimecodeScale uint64  `ebml:"TimecodeScale"`
		MuxingApp     string  `ebml:"MuxingApp"`
		WritingApp    string  `ebml:"WritingApp"`
		Duration      float64 `ebml:"Duration"`
	} `ebml:"Info"`
	Tracks struct {
		TrackEntry []probeTrackEntry `ebml:"TrackEntry"`
	} `ebml:"Tracks"`
	Cluster []probeCluster `ebml:"Cluster"`
}

type probeFile struct {
	Header  probeHeader  `ebml:"EBML"`
	Segment probeSegment `ebml:"Segment"`
}

// ProbeFile inspects a saved recording on disk.
func ProbeFile(path string) (ContainerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Probe(data)
}

// Probe parses a webm payload. Files written by an interrupted encoder
// are accepted as long as the EBML header parsed.
func Probe(data []byte) (ContainerInfo, error) {
	var file probeFile
	err := ebml.Unmarshal(bytes.NewReader(data), &file)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return ContainerInfo{}, fmt.Errorf("parse webm: %w", err)
	}
	if file.Header.DocType == "" {
		return ContainerInfo{}, errors.New("parse webm: missing EBML header")
	}

	seg := file.Segment
	info := ContainerInfo{
		DocType:    file.Header.DocType,
		MuxingApp:  seg.Info.MuxingApp,
		WritingApp: seg.Info.WritingApp,
		Clusters:   len(seg.Cluster),
		Tracks:     make([]TrackInfo, 0, len(seg.Tracks.TrackEntry)),
	}
	for _, entry := range seg.Tracks.TrackEntry {
		track := TrackInfo{Number: entry.TrackNumber, Type: trackType(entry.TrackType), CodecID: entry.CodecID}
		if entry.Video != nil {
			track.Width = entry.Video.PixelWidth
			track.Height = entry.Video.PixelHeight
		}
		info.Tracks = append(info.Tracks, track)
	}

	scale := seg.Info.TimecodeScale
	if scale == 0 {
		scale = defaultTimecodeScale
	}
	var last int64
	for _, cluster := range seg.Cluster {
		info.Blocks += len(cluster.SimpleBlock)
		for _, block := range cluster.SimpleBlock {
			if ts := int64(cluster.Timecode) + int64(block.Timecode); ts > last {
				last = ts
			}
		}
	}
	if seg.Info.Duration > 0 {
		info.Duration = time.Duration(seg.Info.Duration * float64(scale))
	} else {
		info.Duration = time.Duration(last) * time.Duration(scale)
	}
	return info, nil
}

func trackType(t uint64) string {
	switch t {
	case 1:
		return "video"
	case 2:
		return "audio"
	case 17:
		return "subtitle"
	default:
		return fmt.Sprintf("type-%d", t)
	}
}
