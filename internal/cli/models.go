package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/harun/recap/pkg/models"
	"github.com/spf13/cobra"
)

func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models and the one a compaction would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tNAME\tCREDENTIAL")
			for _, model := range rt.registry.ListKnown() {
				status := "missing"
				cred, ok, err := rt.registry.CredentialFor(ctx, model)
				switch {
				case err != nil:
					status = "error: " + err.Error()
				case ok:
					status = cred.ProfileID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", model, model.Name, status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			sessionDefault, err := rt.cfg.SessionDefaultModel()
			if err != nil {
				return err
			}
			selection, ok := models.Select(ctx, models.SelectInput{
				Candidates:      rt.cfg.Models.Candidates,
				Registry:        rt.registry,
				SessionDefault:  sessionDefault,
				DefaultThinking: rt.cfg.DefaultThinking(),
				Logger:          rt.logger,
			})
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "\nSelected: none (compaction would be skipped)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nSelected: %s (thinking %s)\n", selection.Model, selection.ThinkingLevel)
			return nil
		},
	}
}
