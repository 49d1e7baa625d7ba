package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/harun/recap/pkg/compaction"
	"github.com/harun/recap/pkg/hooks"
	"github.com/spf13/cobra"
)

type compactOptions struct {
	sessionKey string
	note       string
	dryRun     bool
	json       bool
}

// compactOutput is the --json rendering of a run
type compactOutput struct {
	Status        string   `json:"status"`
	SessionKey    string   `json:"session_key"`
	EntryID       string   `json:"entry_id,omitempty"`
	Model         string   `json:"model,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	TokensBefore  int      `json:"tokens_before"`
	Turns         int      `json:"turns"`
	ToolCalls     int      `json:"tool_calls"`
	InputTokens   int      `json:"input_tokens"`
	OutputTokens  int      `json:"output_tokens"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	DeletedFiles  []string `json:"deleted_files,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

func newCompactCmd(flags *rootFlags) *cobra.Command {
	opts := &compactOptions{}

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Summarize the older part of a session",
		Long: `Compact a session: the older messages are explored by a model through
read-only shell commands and replaced by a structured summary entry.
Recent messages are kept verbatim. Interrupting the command cancels the run
and leaves the session untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.sessionKey, "session", "s", "", "session key (required)")
	cmd.Flags().StringVar(&opts.note, "note", "", "focus note; overrides a /compact note in the conversation")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the prompts and the selected model without calling it")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func runCompact(cmd *cobra.Command, flags *rootFlags, opts *compactOptions) error {
	rt, err := newRuntime(cmd, flags)
	if err != nil {
		return err
	}
	defer rt.Close()

	compactor, err := rt.compactor(opts.sessionKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := compaction.Request{SessionKey: opts.sessionKey, Note: opts.note}

	if opts.dryRun {
		analysis, err := compactor.Analyze(ctx, req)
		if err != nil {
			return err
		}
		selection, ok := compactor.SelectModel(ctx)
		model := "none (no usable credential)"
		if ok {
			model = fmt.Sprintf("%s (thinking %s, profile %s)", selection.Model, selection.ThinkingLevel, selection.Credential.ProfileID)
		}
		out := cmd.OutOrStdout()
		printAnalysis(out, analysis)
		fmt.Fprintf(out, "Model: %s\n\n", model)
		fmt.Fprintf(out, "--- system prompt ---\n%s\n\n--- instruction ---\n%s\n", analysis.SystemPrompt, analysis.Instruction)
		return nil
	}

	res, runErr := compactor.Compact(ctx, req)

	if res.Status == compaction.StatusCompleted {
		rt.hooks.TriggerAsync(context.WithoutCancel(ctx), hooks.EventCompactionCompleted, map[string]interface{}{
			"session_key":   opts.sessionKey,
			"entry_id":      res.EntryID,
			"model":         res.Model,
			"summary_chars": utf8.RuneCountInString(res.Summary),
			"tokens_before": res.TokensBefore,
		})
	}

	if opts.json {
		output := compactOutput{
			Status:        string(res.Status),
			SessionKey:    opts.sessionKey,
			EntryID:       res.EntryID,
			Model:         res.Model,
			Summary:       res.Summary,
			TokensBefore:  res.TokensBefore,
			Turns:         res.Turns,
			ToolCalls:     res.ToolCalls,
			InputTokens:   res.Usage.InputTokens,
			OutputTokens:  res.Usage.OutputTokens,
			ModifiedFiles: res.FileOps.Modified,
			DeletedFiles:  res.FileOps.Deleted,
			DurationMS:    res.Duration.Milliseconds(),
		}
		if runErr != nil {
			output.Reason = runErr.Error()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return err
		}
	} else {
		printResult(cmd, res, runErr)
	}

	switch res.Status {
	case compaction.StatusCompleted:
		return nil
	case compaction.StatusSkipped:
		// nothing to compact and no usable model are normal outcomes
		if errors.Is(runErr, compaction.ErrNothingToCompact) || errors.Is(runErr, compaction.ErrNoUsableModel) {
			return nil
		}
		return runErr
	default:
		return runErr
	}
}

func printResult(cmd *cobra.Command, res compaction.Result, runErr error) {
	out := cmd.OutOrStdout()
	if res.Status != compaction.StatusCompleted {
		fmt.Fprintf(cmd.ErrOrStderr(), "Compaction %s: %v\n", res.Status, runErr)
		return
	}
	fmt.Fprintln(out, res.Summary)
	fmt.Fprintf(cmd.ErrOrStderr(), "\nCompaction completed: entry %s, model %s, %d turns, %d tool calls, %s\n",
		res.EntryID, res.Model, res.Turns, res.ToolCalls, formatDuration(res.Duration))
}
