package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"screen-recorder/internal/command"
	"screen-recorder/internal/domain"
)

const (
	defaultV4L2Device  = "/dev/video0"
	defaultPulseSource = "default"
)

// x11Backend enumerates monitors with xrandr and windows with wmctrl and
// captures them through ffmpeg's x11grab device.
type x11Backend struct {
	runner command.Runner
	opts   Options
	log    *slog.Logger
}

type x11Monitor struct {
	Index  int
	Name   string
	Width  int
	Height int
	X      int
	Y      int
}

type x11Window struct {
	ID    string
	Title string
}

var (
	xrandrMonitorLine = regexp.MustCompile(`^\s*(\d+):\s+\S+\s+(\d+)/\d+x(\d+)/\d+\+(-?\d+)\+(-?\d+)\s+(\S+)\s*$`)
	wmctrlWindowLine  = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(\S+)\s*(.*)$`)
)

func (b *x11Backend) listSources(ctx context.Context) ([]sourceEntry, error) {
	args := []string{"--listmonitors"}
	res, err := b.runner.Run(ctx, "xrandr", args...)
	log := command.NewLog("xrandr", args, res, false)
	if err != nil {
		return nil, unavailable("cannot enumerate X11 monitors", log, err)
	}

	monitors := parseXrandrMonitors(string(res.Stdout))
	entries := lo.Map(monitors, func(m x11Monitor, _ int) sourceEntry {
		return sourceEntry{
			source: domain.CaptureSource{
				ID:   fmt.Sprintf("x11:screen:%d", m.Index),
				Name: fmt.Sprintf("Screen %d (%s)", m.Index+1, m.Name),
				Kind: domain.SourceKindScreen,
			},
			input: b.screenInput(m),
		}
	})

	windows, err := b.listWindows(ctx)
	if err != nil {
		b.log.Debug("window enumeration skipped", "error", err)
		return entries, nil
	}
	for _, w := range windows {
		entries = append(entries, sourceEntry{
			source: domain.CaptureSource{
				ID:   "x11:window:" + w.ID,
				Name: w.Title,
				Kind: domain.SourceKindWindow,
			},
			input: b.windowInput(w),
		})
	}
	return entries, nil
}

func (b *x11Backend) listWindows(ctx context.Context) ([]x11Window, error) {
	res, err := b.runner.Run(ctx, "wmctrl", "-l")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("wmctrl not installed: %w", err)
		}
		return nil, fmt.Errorf("wmctrl -l: %w", err)
	}
	return parseWmctrlWindows(string(res.Stdout)), nil
}

func (b *x11Backend) screenInput(m x11Monitor) []string {
	return []string{
		"-f", "x11grab",
		"-framerate", strconv.Itoa(b.opts.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", m.Width, m.Height),
		"-i", fmt.Sprintf("%s+%d,%d", b.opts.Display, m.X, m.Y),
	}
}

func (b *x11Backend) windowInput(w x11Window) []string {
	return []string{
		"-f", "x11grab",
		"-framerate", strconv.Itoa(b.opts.FrameRate),
		"-window_id", w.ID,
		"-i", b.opts.Display,
	}
}

func (b *x11Backend) webcamInput(ctx context.Context) ([]string, error) {
	camera := lo.Ternary(b.opts.WebcamDevice != "", b.opts.WebcamDevice, defaultV4L2Device)
	mic := lo.Ternary(b.opts.MicrophoneDevice != "", b.opts.MicrophoneDevice, defaultPulseSource)
	return []string{
		"-f", "v4l2",
		"-framerate", strconv.Itoa(b.opts.FrameRate),
		"-i", camera,
		"-f", "pulse",
		"-i", mic,
	}, nil
}

// parseXrandrMonitors parses `xrandr --listmonitors` output.
func parseXrandrMonitors(out string) []x11Monitor {
	var monitors []x11Monitor
	for _, line := range strings.Split(out, "\n") {
		m := xrandrMonitorLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		index, _ := strconv.Atoi(m[1])
		width, _ := strconv.Atoi(m[2])
		height, _ := strconv.Atoi(m[3])
		x, _ := strconv.Atoi(m[4])
		y, _ := strconv.Atoi(m[5])
		monitors = append(monitors, x11Monitor{
			Index:  index,
			Name:   m[6],
			Width:  width,
			Height: height,
			X:      x,
			Y:      y,
		})
	}
	return monitors
}

// parseWmctrlWindows parses `wmctrl -l` output, skipping untitled windows.
func parseWmctrlWindows(out string) []x11Window {
	var windows []x11Window
	for _, line := range strings.Split(out, "\n") {
		m := wmctrlWindowLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[4])
		if title == "" {
			continue
		}
		windows = append(windows, x11Window{ID: m[1], Title: title})
	}
	return windows
}
