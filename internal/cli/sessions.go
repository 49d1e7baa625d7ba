package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/harun/recap/pkg/conversation"
	"github.com/spf13/cobra"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd, flags)
				if err != nil {
					return err
				}
				defer rt.Close()

				keys, err := rt.sessions.List()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tMESSAGES\tCOMPACTIONS\tMODIFIED")
				for _, key := range keys {
					info, err := rt.sessions.Info(cmd.Context(), key)
					if err != nil {
						rt.logger.Warn().Err(err).Str("session_key", key).Msg("Skipping unreadable session")
						continue
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%s ago\n", key, info.Messages, info.Compactions, formatDuration(time.Since(info.LastModified)))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "info <session>",
			Short: "Show session metadata as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd, flags)
				if err != nil {
					return err
				}
				defer rt.Close()

				info, err := rt.sessions.Info(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			},
		},
		&cobra.Command{
			Use:   "import <session> <file|->",
			Short: "Replace a session with messages from a JSON array",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd, flags)
				if err != nil {
					return err
				}
				defer rt.Close()

				data, err := readInput(cmd.InOrStdin(), args[1])
				if err != nil {
					return err
				}
				msgs, err := conversation.DecodeMessages(data)
				if err != nil {
					return err
				}
				if err := rt.sessions.Import(cmd.Context(), args[0], msgs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages into %s\n", len(msgs), args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "repair <session>",
			Short: "Rewrite a session without its corrupt lines",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd, flags)
				if err != nil {
					return err
				}
				defer rt.Close()

				if err := rt.sessions.Repair(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <session>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd, flags)
				if err != nil {
					return err
				}
				defer rt.Close()

				if err := rt.sessions.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			},
		},
	)

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
