package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"screen-recorder/internal/command"
	"screen-recorder/internal/config"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/logger"
)

const installCommandTimeout = 45 * time.Minute

// ErrUnsupportedFix is returned for items without an automated remediation.
var ErrUnsupportedFix = errors.New("unsupported diagnostic fix")

type installOption struct {
	manager  string
	commands [][]string
}

// Fixer remediates failed diagnostic items through the OS package manager
// or by creating missing folders.
type Fixer struct {
	goos     string
	runner   command.Runner
	lookPath func(string) (string, error)
	mkdirAll func(string, os.FileMode) error
	timeout  time.Duration
	log      *slog.Logger
}

// NewFixer builds a fixer using real processes.
func NewFixer(log *slog.Logger) *Fixer {
	if log == nil {
		log = logger.Discard()
	}
	return &Fixer{
		goos:     goruntime.GOOS,
		runner:   command.ExecRunner{},
		lookPath: exec.LookPath,
		mkdirAll: os.MkdirAll,
		timeout:  installCommandTimeout,
		log:      log.With("component", "diagnostics"),
	}
}

// NewFixerForTests builds a fixer with injected process and filesystem access.
func NewFixerForTests(
	goos string,
	runner command.Runner,
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
) *Fixer {
	return &Fixer{
		goos:     goos,
		runner:   runner,
		lookPath: lookPath,
		mkdirAll: mkdirAll,
		timeout:  time.Minute,
		log:      logger.Discard(),
	}
}

// Fix applies the remediation for itemID. It returns the possibly updated
// settings and whether they changed and must be persisted.
func (f *Fixer) Fix(ctx context.Context, itemID string, settings domain.Settings) (domain.Settings, bool, error) {
	switch strings.TrimSpace(itemID) {
	case "tool_ffmpeg":
		return settings, false, f.installTool(ctx, "ffmpeg", ffmpegOptions(f.goos))
	case "tool_xrandr":
		return settings, false, f.installTool(ctx, "xrandr", linuxPackageOptions(map[string]string{
			"apt-get": "x11-xserver-utils",
			"dnf":     "xrandr",
			"pacman":  "xorg-xrandr",
			"zypper":  "xrandr",
		}))
	case "tool_wmctrl":
		return settings, false, f.installTool(ctx, "wmctrl", linuxPackageOptions(map[string]string{
			"apt-get": "wmctrl",
			"dnf":     "wmctrl",
			"pacman":  "wmctrl",
			"zypper":  "wmctrl",
		}))
	case "output_dir":
		return f.fixOutputDir(settings)
	case "":
		return settings, false, fmt.Errorf("diagnostic item id is required")
	default:
		return settings, false, fmt.Errorf("%w: %s", ErrUnsupportedFix, itemID)
	}
}

func ffmpegOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		options := linuxPackageOptions(map[string]string{
			"apt-get": "ffmpeg",
			"dnf":     "ffmpeg",
			"pacman":  "ffmpeg",
			"zypper":  "ffmpeg",
		})
		return append(options, installOption{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}})
	}
}

// linuxPackageOptions maps package-manager names to the package providing
// a tool, in preference order.
func linuxPackageOptions(packages map[string]string) []installOption {
	options := make([]installOption, 0, len(packages))
	for _, manager := range []string{"apt-get", "dnf", "pacman", "zypper"} {
		pkg, ok := packages[manager]
		if !ok {
			continue
		}
		var commands [][]string
		switch manager {
		case "apt-get":
			commands = [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", pkg}}
		case "pacman":
			commands = [][]string{{"pacman", "-Sy", "--noconfirm", pkg}}
		default:
			commands = [][]string{{manager, "install", "-y", pkg}}
		}
		options = append(options, installOption{manager: manager, commands: commands})
	}
	return options
}

func (f *Fixer) installTool(ctx context.Context, tool string, options []installOption) error {
	if f.goos != "linux" && (tool == "xrandr" || tool == "wmctrl") {
		return fmt.Errorf("%w: %s is only used on linux", ErrUnsupportedFix, tool)
	}
	if err := f.runFirstSuccessfulInstall(ctx, options); err != nil {
		return fmt.Errorf("install %s: %w", tool, err)
	}
	if err := f.requireToolsOnPath(tool); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", tool, err)
	}
	f.log.Info("tool installed", "tool", tool)
	return nil
}

func (f *Fixer) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", f.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !f.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := f.runInstallCommands(ctx, option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", f.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (f *Fixer) runInstallCommands(ctx context.Context, commands [][]string) error {
	for _, cmd := range commands {
		if err := f.runCommandWithPossibleElevation(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fixer) runCommandWithPossibleElevation(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{cmd}
	if f.goos == "linux" && requiresElevation(cmd[0]) {
		if f.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, cmd...))
		}
		if f.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, cmd...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := f.runCommand(ctx, candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}
	return errors.New(strings.Join(attemptErrors, " | "))
}

func (f *Fixer) runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.log.Debug("running install command", "command", formatCommand(name, args))
	res, err := f.runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), f.timeout)
	}

	trimmed := strings.TrimSpace(res.Stderr)
	if trimmed == "" {
		trimmed = strings.TrimSpace(string(res.Stdout))
	}
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func (f *Fixer) commandAvailable(name string) bool {
	_, err := f.lookPath(name)
	return err == nil
}

func (f *Fixer) requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !f.commandAvailable(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (f *Fixer) fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultOutputDir()
		settings.OutputDir = outputDir
		changed = true
	}

	if err := f.mkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	return settings, changed, nil
}
