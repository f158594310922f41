package capture

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"screen-recorder/internal/command"
	"screen-recorder/internal/domain"
)

const listWindowsScript = `Get-Process | Where-Object { $_.MainWindowTitle } | ForEach-Object { "{0}` + "`t" + `{1}" -f $_.Id, $_.MainWindowTitle }`

// gdigrabBackend captures the Windows desktop or a titled window through
// gdigrab and the webcam through dshow.
type gdigrabBackend struct {
	runner command.Runner
	opts   Options
	log    *slog.Logger
}

type winWindow struct {
	PID   int
	Title string
}

type dshowDevice struct {
	Name  string
	Audio bool
}

var dshowDeviceLine = regexp.MustCompile(`\]\s+"(.+)"\s+\((video|audio)\)`)

func (b *gdigrabBackend) listSources(ctx context.Context) ([]sourceEntry, error) {
	frameRate := strconv.Itoa(b.opts.FrameRate)
	entries := []sourceEntry{{
		source: domain.CaptureSource{
			ID:   "gdigrab:desktop",
			Name: "Entire screen",
			Kind: domain.SourceKindScreen,
		},
		input: []string{"-f", "gdigrab", "-framerate", frameRate, "-i", "desktop"},
	}}

	args := []string{"-NoProfile", "-NonInteractive", "-Command", listWindowsScript}
	res, err := b.runner.Run(ctx, "powershell", args...)
	if err != nil {
		b.log.Debug("window enumeration skipped", "error", err, "stderr", strings.TrimSpace(res.Stderr))
		return entries, nil
	}

	for _, w := range parsePowershellWindows(string(res.Stdout)) {
		entries = append(entries, sourceEntry{
			source: domain.CaptureSource{
				ID:   fmt.Sprintf("gdigrab:window:%d", w.PID),
				Name: w.Title,
				Kind: domain.SourceKindWindow,
			},
			input: []string{"-f", "gdigrab", "-framerate", frameRate, "-i", "title=" + w.Title},
		})
	}
	return entries, nil
}

func (b *gdigrabBackend) webcamInput(ctx context.Context) ([]string, error) {
	args := []string{"-hide_banner", "-nostdin", "-list_devices", "true", "-f", "dshow", "-i", "dummy"}
	res, runErr := b.runner.Run(ctx, b.opts.FFmpegPath, args...)
	log := command.NewLog(b.opts.FFmpegPath, args, res, false)

	devices := parseDshowDevices(res.Stderr)
	if len(devices) == 0 && runErr != nil {
		return nil, failed("cannot enumerate dshow devices", log, runErr)
	}

	cameras := lo.Reject(devices, func(d dshowDevice, _ int) bool { return d.Audio })
	mics := lo.Filter(devices, func(d dshowDevice, _ int) bool { return d.Audio })

	camera, ok := pickDshowDevice(cameras, b.opts.WebcamDevice)
	if !ok {
		return nil, failed("no camera found", log, nil)
	}

	spec := "video=" + camera.Name
	if mic, ok := pickDshowDevice(mics, b.opts.MicrophoneDevice); ok {
		spec += ":audio=" + mic.Name
	}
	return []string{"-f", "dshow", "-framerate", strconv.Itoa(b.opts.FrameRate), "-i", spec}, nil
}

func pickDshowDevice(devices []dshowDevice, want string) (dshowDevice, bool) {
	if want == "" {
		return lo.First(devices)
	}
	return lo.Find(devices, func(d dshowDevice) bool {
		return strings.EqualFold(d.Name, want)
	})
}

// parsePowershellWindows parses "<pid>\t<title>" lines.
func parsePowershellWindows(out string) []winWindow {
	var windows []winWindow
	for _, line := range strings.Split(out, "\n") {
		pidText, title, ok := strings.Cut(strings.TrimRight(line, "\r"), "\t")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(pidText))
		title = strings.TrimSpace(title)
		if err != nil || title == "" {
			continue
		}
		windows = append(windows, winWindow{PID: pid, Title: title})
	}
	return windows
}

// parseDshowDevices parses `-list_devices true -f dshow` stderr output.
func parseDshowDevices(out string) []dshowDevice {
	var devices []dshowDevice
	for _, line := range strings.Split(out, "\n") {
		m := dshowDeviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		devices = append(devices, dshowDevice{Name: m[1], Audio: m[2] == "audio"})
	}
	return devices
}
