package capture

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"screen-recorder/internal/command"
	"screen-recorder/internal/domain"
)

const avfoundationScreenPrefix = "Capture screen"

// avfoundationBackend captures macOS screens and cameras via ffmpeg's
// avfoundation device. Individual windows are not addressable there.
type avfoundationBackend struct {
	runner command.Runner
	opts   Options
}

type avDevice struct {
	Index int
	Name  string
}

var avDeviceLine = regexp.MustCompile(`\]\s+\[(\d+)\]\s+(.+?)\s*$`)

func (b *avfoundationBackend) listDevices(ctx context.Context) (video, audio []avDevice, log command.Log, err error) {
	args := []string{"-hide_banner", "-nostdin", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
	res, runErr := b.runner.Run(ctx, b.opts.FFmpegPath, args...)
	log = command.NewLog(b.opts.FFmpegPath, args, res, false)

	// ffmpeg always exits non-zero after listing; only the stderr matters.
	video, audio = parseAVFoundationDevices(res.Stderr)
	if len(video) == 0 && runErr != nil {
		return nil, nil, log, runErr
	}
	return video, audio, log, nil
}

func (b *avfoundationBackend) listSources(ctx context.Context) ([]sourceEntry, error) {
	video, _, log, err := b.listDevices(ctx)
	if err != nil {
		return nil, unavailable("cannot enumerate avfoundation devices; check Screen Recording permission", log, err)
	}

	screens := lo.Filter(video, func(d avDevice, _ int) bool {
		return strings.HasPrefix(d.Name, avfoundationScreenPrefix)
	})
	return lo.Map(screens, func(d avDevice, _ int) sourceEntry {
		return sourceEntry{
			source: domain.CaptureSource{
				ID:   fmt.Sprintf("avfoundation:%d", d.Index),
				Name: d.Name,
				Kind: domain.SourceKindScreen,
			},
			input: []string{
				"-f", "avfoundation",
				"-capture_cursor", "1",
				"-framerate", strconv.Itoa(b.opts.FrameRate),
				"-i", fmt.Sprintf("%d:none", d.Index),
			},
		}
	}), nil
}

func (b *avfoundationBackend) webcamInput(ctx context.Context) ([]string, error) {
	video, audio, log, err := b.listDevices(ctx)
	if err != nil {
		return nil, failed("cannot enumerate cameras", log, err)
	}

	cameras := lo.Reject(video, func(d avDevice, _ int) bool {
		return strings.HasPrefix(d.Name, avfoundationScreenPrefix)
	})
	camera, ok := pickAVDevice(cameras, b.opts.WebcamDevice)
	if !ok {
		return nil, failed("no camera found", log, nil)
	}

	audioSpec := "none"
	if mic, ok := pickAVDevice(audio, b.opts.MicrophoneDevice); ok {
		audioSpec = strconv.Itoa(mic.Index)
	}

	return []string{
		"-f", "avfoundation",
		"-framerate", strconv.Itoa(b.opts.FrameRate),
		"-i", fmt.Sprintf("%d:%s", camera.Index, audioSpec),
	}, nil
}

// pickAVDevice returns the device whose name matches want, or the first
// device when want is empty.
func pickAVDevice(devices []avDevice, want string) (avDevice, bool) {
	if want == "" {
		return lo.First(devices)
	}
	return lo.Find(devices, func(d avDevice) bool {
		return strings.EqualFold(d.Name, want)
	})
}

// parseAVFoundationDevices parses `-list_devices true` stderr output.
func parseAVFoundationDevices(out string) (video, audio []avDevice) {
	var section *[]avDevice
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "video devices:"):
			section = &video
			continue
		case strings.Contains(line, "audio devices:"):
			section = &audio
			continue
		}
		if section == nil {
			continue
		}
		m := avDeviceLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		index, _ := strconv.Atoi(m[1])
		*section = append(*section, avDevice{Index: index, Name: m[2]})
	}
	return video, audio
}
