package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"screen-recorder/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	goos       string
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		goos:       goruntime.GOOS,
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// platformTool is an OS helper used for source enumeration.
type platformTool struct {
	name     string
	required bool
	purpose  string
}

// platformTools lists the helpers each OS needs besides ffmpeg.
func platformTools(goos string) []platformTool {
	switch goos {
	case "linux":
		return []platformTool{
			{name: "xrandr", required: true, purpose: "screen enumeration"},
			{name: "wmctrl", required: false, purpose: "window enumeration"},
		}
	case "windows":
		return []platformTool{
			{name: "powershell", required: false, purpose: "window enumeration"},
		}
	default:
		return nil
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffmpeg := strings.TrimSpace(settings.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	items := []domain.DiagnosticItem{c.checkFFmpeg(ffmpeg)}
	for _, tool := range platformTools(c.goos) {
		items = append(items, c.checkPlatformTool(tool))
	}
	items = append(items, c.checkOutputDir(settings.OutputDir))

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkFFmpeg verifies the configured encoder binary resolves.
func (c *Checker) checkFFmpeg(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:      "tool_ffmpeg",
		Name:    "ffmpeg",
		Fixable: c.goos != "windows",
	}

	resolved, err := c.lookPath(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", path)
		item.Hint = "Install ffmpeg with libvpx and libopus support, or set its path in settings."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", resolved)
	item.Fixable = false
	return item
}

// checkPlatformTool verifies one enumeration helper is on PATH.
func (c *Checker) checkPlatformTool(tool platformTool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tool_" + tool.name,
		Name: tool.name,
	}

	resolved, err := c.lookPath(tool.name)
	if err == nil {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", resolved)
		return item
	}

	item.Status = domain.DiagnosticStatusWarn
	if tool.required {
		item.Status = domain.DiagnosticStatusFail
	}
	item.Message = fmt.Sprintf("Tool not found in PATH: %s (%s)", tool.name, tool.purpose)
	if tool.required {
		item.Hint = "Install it so capturable screens can be listed."
	} else {
		item.Hint = "Screens can still be recorded; individual windows will not be listed."
	}
	item.Fixable = c.goos == "linux"
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where recordings can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for recordings."
		item.Fixable = true
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	goos string,
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		goos:       goos,
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
