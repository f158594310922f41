package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"screen-recorder/internal/domain"
	"screen-recorder/internal/engine"
	"screen-recorder/internal/metrics"
	"screen-recorder/internal/version"
)

// Checker runs startup diagnostics.
type Checker interface {
	Run(settings domain.Settings) domain.DiagnosticReport
}

// Fixer remediates one failed diagnostic item.
type Fixer interface {
	Fix(ctx context.Context, itemID string, settings domain.Settings) (domain.Settings, bool, error)
}

// SettingsSaver persists settings changed by a fix.
type SettingsSaver interface {
	Save(cfg domain.Settings) error
}

type Dependencies struct {
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	Checker Checker
	Fixer   Fixer
	Store   SettingsSaver
	Log     *slog.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "screenrec",
		Short:         "Record a screen or window, optionally with the webcam",
		Long:          "A recorder that captures one screen or window, and optionally the webcam, into per-session WebM files.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewSourcesCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewSessionsCmd(deps))
	rootCmd.AddCommand(NewInspectCmd(deps))

	return rootCmd
}
