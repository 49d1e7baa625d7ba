package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/harun/recap/pkg/diagnostics"
	"github.com/spf13/cobra"
)

func newDiagnosticsCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionKey string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List diagnostics of failed or rejected compactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !rt.cfg.Diagnostics.Enabled {
				return fmt.Errorf("diagnostics are disabled")
			}
			sink, err := rt.diagnosticsSink()
			if err != nil {
				return err
			}
			reader, ok := sink.(diagnostics.Reader)
			if !ok {
				return fmt.Errorf("diagnostics backend %q cannot be listed", rt.cfg.Diagnostics.Backend)
			}

			records, err := reader.Recent(cmd.Context(), sessionKey, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tREASON\tMODEL\tERROR")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Reason, rec.Model, rec.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full records as JSON")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
