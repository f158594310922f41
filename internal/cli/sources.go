package cli

import (
	"github.com/spf13/cobra"
)

func NewSourcesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List capturable screens and windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := deps.Engine.Controller().ListSources(cmd.Context())
			if err != nil {
				return err
			}
			NewFormatter(cmd.OutOrStdout()).SourceList(sources)
			return nil
		},
	}
}
