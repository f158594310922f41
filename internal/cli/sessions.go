package cli

import (
	"github.com/spf13/cobra"
)

func NewSessionsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List saved recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := deps.Engine.Recordings()
			if err != nil {
				return err
			}
			NewFormatter(cmd.OutOrStdout()).SessionList(sessions)
			return nil
		},
	}
}

func NewInspectCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show container details of a saved recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := deps.Engine.Inspect(args[0])
			if err != nil {
				return err
			}
			NewFormatter(cmd.OutOrStdout()).Inspection(args[0], files)
			return nil
		},
	}
}
