package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"screen-recorder/internal/domain"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.OutOrStdout())
			settings := deps.Engine.Settings()
			report := deps.Checker.Run(settings)

			if fix && deps.Fixer != nil {
				var fixErrs []error
				for _, item := range report.Items {
					if item.Status == domain.DiagnosticStatusPass || !item.Fixable {
						continue
					}
					f.Info("Fixing " + item.Name)
					updated, changed, err := deps.Fixer.Fix(cmd.Context(), item.ID, settings)
					if err != nil {
						fixErrs = append(fixErrs, err)
						continue
					}
					if changed {
						settings = updated
						if deps.Store != nil {
							if err := deps.Store.Save(settings); err != nil {
								fixErrs = append(fixErrs, err)
							}
						}
						if _, err := deps.Engine.Apply(settings); err != nil {
							fixErrs = append(fixErrs, err)
						}
					}
				}
				for _, err := range fixErrs {
					f.Error(err.Error())
				}
				report = deps.Checker.Run(settings)
			}

			for _, item := range report.Items {
				f.Check(item)
			}

			if report.HasFailures {
				f.Warning("\nSome prerequisites are missing.")
				return errors.New("diagnostics failed")
			}
			f.Success("\nAll prerequisites met. Ready to record!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Try to install missing tools and create missing folders")
	return cmd
}
