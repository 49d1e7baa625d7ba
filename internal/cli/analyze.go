package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/harun/recap/pkg/compaction"
	"github.com/harun/recap/pkg/conversation"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionKey string
		note       string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Show what a compaction would summarize",
		Long: `Analyze a session without calling a model: the cut point, the files the
conversation touched, and the focus note.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			compactor, err := rt.compactor(sessionKey)
			if err != nil {
				return err
			}
			analysis, err := compactor.Analyze(cmd.Context(), compaction.Request{SessionKey: sessionKey, Note: note})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analysisJSON(analysis))
			}
			printAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key (required)")
	cmd.Flags().StringVar(&note, "note", "", "focus note; overrides a /compact note in the conversation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func analysisJSON(a compaction.Analysis) map[string]interface{} {
	relevant, temp := conversation.SplitModified(a.FileOps.Modified)
	return map[string]interface{}{
		"session_key":         a.SessionKey,
		"messages":            len(a.Preparation.Messages),
		"kept":                a.Preparation.Kept(),
		"first_kept_entry_id": a.Preparation.FirstKeptEntryID,
		"tokens_before":       a.Preparation.TokensBefore,
		"has_previous":        a.Preparation.PreviousSummary != "",
		"modified_files":      relevant,
		"temp_files":          temp,
		"deleted_files":       a.FileOps.Deleted,
		"note":                a.Note,
	}
}

func printAnalysis(out io.Writer, a compaction.Analysis) {
	relevant, temp := conversation.SplitModified(a.FileOps.Modified)

	fmt.Fprintf(out, "Session: %s\n", a.SessionKey)
	fmt.Fprintf(out, "Messages to summarize: %d (~%d tokens)\n", len(a.Preparation.Messages), a.Preparation.TokensBefore)
	fmt.Fprintf(out, "Messages kept: %d (first kept entry %s)\n", a.Preparation.Kept(), a.Preparation.FirstKeptEntryID)
	if a.Preparation.PreviousSummary != "" {
		fmt.Fprintln(out, "Previous summary: yes")
	}
	printList(out, "Modified files", relevant)
	printList(out, "Temporary files", temp)
	printList(out, "Deleted files", a.FileOps.Deleted)
	if a.Note != "" {
		fmt.Fprintf(out, "Note: %s\n", a.Note)
	}
}

func printList(out io.Writer, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n  %s\n", heading, strings.Join(items, "\n  "))
}
