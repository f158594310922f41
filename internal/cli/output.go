package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"screen-recorder/internal/domain"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/session"
	"screen-recorder/internal/storage"
)

// Formatter renders command output with status glyphs and color.
type Formatter struct {
	w      io.Writer
	accent *color.Color
	faint  *color.Color
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{
		w:      w,
		accent: color.New(color.FgCyan),
		faint:  color.New(color.Faint),
		good:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed, color.Bold),
	}
}

func (f *Formatter) SourceList(sources []domain.CaptureSource) {
	if len(sources) == 0 {
		f.Info("No capture sources found")
		return
	}
	fmt.Fprintf(f.w, "🖥️  Capture sources:\n\n")
	for _, s := range sources {
		fmt.Fprintf(f.w, "  %-8s %s  %s\n", s.Kind, f.accent.Sprint(s.ID), s.Name)
	}
}

func (f *Formatter) RecordingStarted(view domain.ViewState, webcam bool, duration time.Duration) {
	fmt.Fprintf(f.w, "⏺️  Recording %s\n", f.accent.Sprint(view.SourceLabel))
	if webcam {
		fmt.Fprintf(f.w, "📷 Webcam recording alongside\n")
	}
	if duration > 0 {
		fmt.Fprintf(f.w, "(Stopping automatically after %s.)\n", duration)
	} else {
		fmt.Fprintf(f.w, "(Press %s to stop.)\n", color.New(color.FgYellow, color.Bold).Sprint("Ctrl+C"))
	}
}

func (f *Formatter) RecordingStopped(elapsed string) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s)\n", elapsed)
}

// Event prints notifications raised while recording.
func (f *Formatter) Event(ev session.Event) {
	switch ev.Type {
	case session.EventTypeNotification:
		if ev.Level == session.LevelWarning {
			f.Warning(ev.Message)
		} else {
			f.Info(ev.Message)
		}
	case session.EventTypeError:
		f.Error(ev.Message)
	}
}

func (f *Formatter) Saved(dir string) {
	fmt.Fprintf(f.w, "\n📁 Recording saved to: %s\n", f.accent.Sprint(dir))
}

func (f *Formatter) SessionList(sessions []storage.SessionInfo) {
	if len(sessions) == 0 {
		f.Info("No recordings found")
		return
	}
	fmt.Fprintf(f.w, "📁 Recordings:\n\n")
	for _, s := range sessions {
		fmt.Fprintf(f.w, "  %s  %s\n", f.accent.Sprint(s.ID), f.faint.Sprint(s.ModTime.Local().Format(time.DateTime)))
		for _, file := range s.Files {
			fmt.Fprintf(f.w, "      %-12s %s\n", file.Name, formatBytes(file.Size))
		}
	}
}

func (f *Formatter) Inspection(sessionID string, files []engine.InspectedFile) {
	fmt.Fprintf(f.w, "🔎 %s\n", f.accent.Sprint(sessionID))
	for _, item := range files {
		fmt.Fprintf(f.w, "\n  %s (%s)\n", item.File.Name, formatBytes(item.File.Size))
		if item.Error != "" {
			fmt.Fprintf(f.w, "    %s %s\n", f.bad.Sprint("unreadable:"), item.Error)
			continue
		}
		info := item.Info
		fmt.Fprintf(f.w, "    doc type:  %s\n", info.DocType)
		if info.MuxingApp != "" {
			fmt.Fprintf(f.w, "    muxer:     %s\n", info.MuxingApp)
		}
		fmt.Fprintf(f.w, "    duration:  %s\n", session.FormatElapsed(info.Duration))
		fmt.Fprintf(f.w, "    clusters:  %d, blocks: %d\n", info.Clusters, info.Blocks)
		for _, track := range info.Tracks {
			if track.Width > 0 {
				fmt.Fprintf(f.w, "    track %d:   %s %s %dx%d\n", track.Number, track.Type, track.CodecID, track.Width, track.Height)
			} else {
				fmt.Fprintf(f.w, "    track %d:   %s %s\n", track.Number, track.Type, track.CodecID)
			}
		}
	}
}

func (f *Formatter) Check(item domain.DiagnosticItem) {
	switch item.Status {
	case domain.DiagnosticStatusPass:
		fmt.Fprintf(f.w, "  %s %s: %s\n", f.good.Sprint("✔"), item.Name, item.Message)
	case domain.DiagnosticStatusWarn:
		fmt.Fprintf(f.w, "  %s %s: %s\n", f.warn.Sprint("!"), item.Name, item.Message)
	default:
		fmt.Fprintf(f.w, "  %s %s: %s\n", f.bad.Sprint("✘"), item.Name, item.Message)
	}
	if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
		fmt.Fprintf(f.w, "      %s\n", f.faint.Sprint(item.Hint))
	}
}

func (f *Formatter) Listening(addr string) {
	fmt.Fprintf(f.w, "🌐 Control API listening on %s\n", f.accent.Sprint("http://"+addr))
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
