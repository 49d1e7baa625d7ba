package compaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/recap/internal/observability"
	"github.com/harun/recap/internal/tracing"
	"github.com/harun/recap/pkg/agent"
	"github.com/harun/recap/pkg/conversation"
	"github.com/harun/recap/pkg/diagnostics"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/prompt"
	"github.com/harun/recap/pkg/sandbox"
	"github.com/harun/recap/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "recap.compaction"

// Status is the terminal state of a run
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// SessionStore is the part of session.Manager a run needs
type SessionStore interface {
	Load(ctx context.Context, sessionKey string) ([]session.Entry, error)
	AppendCompaction(ctx context.Context, sessionKey string, c session.Compaction) (string, error)
}

// Options tune a run
type Options struct {
	ToolConcurrency    int
	PreviewLength      int
	MaxOutputChars     int
	MinSummaryChars    int
	MaxTurns           int
	MaxTokens          int
	KeepRecentMessages int
	IncludeTempFiles   bool
	DeletingTools      []string
}

// Config wires a Compactor
type Config struct {
	Sessions  SessionStore
	Registry  models.Registry
	Providers agent.ProviderCreator

	Candidates      []models.Candidate
	SessionDefault  *models.Descriptor
	DefaultThinking models.ThinkingLevel

	Sandbox     sandbox.Config
	Diagnostics diagnostics.Sink
	Notifier    Notifier
	Options     Options
	Logger      zerolog.Logger
}

// Request names the session to compact
type Request struct {
	SessionKey string

	// Note overrides the /compact note found in the conversation when not blank
	Note string
}

// Analysis holds everything derived from a session before any model call
type Analysis struct {
	SessionKey   string
	Preparation  Preparation
	FileOps      conversation.FileOps
	Note         string
	SystemPrompt string
	Instruction  string
}

// Result describes a finished run
type Result struct {
	Status       Status
	Summary      string
	EntryID      string
	Model        string
	FileOps      conversation.FileOps
	TokensBefore int
	Turns        int
	ToolCalls    int
	Usage        agent.TokenUsage
	Duration     time.Duration
}

// Compactor runs compactions
type Compactor struct {
	config Config
	logger zerolog.Logger
}

// New validates cfg and creates a Compactor
func New(cfg Config) (*Compactor, error) {
	observability.EnsureRegistered()

	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	if cfg.Providers == nil {
		cfg.Providers = &agent.ProviderFactory{}
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = diagnostics.NopSink{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.DefaultThinking == "" {
		cfg.DefaultThinking = models.ThinkingOff
	}
	if err := sandbox.ValidateConfig(cfg.Sandbox); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}

	return &Compactor{
		config: cfg,
		logger: cfg.Logger.With().Str("component", "compaction").Logger(),
	}, nil
}

// Analyze loads a session and derives the cut point, file operations, note
// and prompts without calling a model.
func (c *Compactor) Analyze(ctx context.Context, req Request) (Analysis, error) {
	entries, err := c.config.Sessions.Load(ctx, req.SessionKey)
	if err != nil {
		return Analysis{}, err
	}

	prep, err := Prepare(entries, c.config.Options.KeepRecentMessages)
	if err != nil {
		return Analysis{}, err
	}

	ops := conversation.ExtractFileOpsWith(prep.Messages, conversation.FileOpsOptions{
		DeletingTools: c.config.Options.DeletingTools,
	})
	// the /compact command usually sits in the kept tail
	note, _ := conversation.ResolveNote(req.Note, prep.Live)

	return Analysis{
		SessionKey:  req.SessionKey,
		Preparation: prep,
		FileOps:     ops,
		Note:        note,
		SystemPrompt: prompt.SystemPrompt(prompt.Input{
			FileOps:          ops,
			IncludeTempFiles: c.config.Options.IncludeTempFiles,
			Note:             note,
			PreviousSummary:  prep.PreviousSummary,
		}),
		Instruction: prompt.InitialInstruction(note),
	}, nil
}

// SelectModel resolves the model and credential a run would use
func (c *Compactor) SelectModel(ctx context.Context) (models.Selection, bool) {
	return models.Select(ctx, models.SelectInput{
		Candidates:      c.config.Candidates,
		Registry:        c.config.Registry,
		SessionDefault:  c.config.SessionDefault,
		DefaultThinking: c.config.DefaultThinking,
		Logger:          c.logger,
	})
}

// Compact runs one compaction. The returned error is nil only for a
// completed run; Result.Status tells skipped, cancelled and failed apart.
func (c *Compactor) Compact(ctx context.Context, req Request) (res Result, err error) {
	ctx = tracing.NewCompactionContext(ctx, req.SessionKey)
	ctx, span := tracing.StartSpan(ctx, tracerName, "compaction.run", attribute.String("session_key", req.SessionKey))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		observability.RecordCompaction(string(res.Status), res.Duration)
		observability.RecordCompactionAudit(tracing.CloneContext(ctx), req.SessionKey, string(res.Status), map[string]interface{}{
			"model":      res.Model,
			"turns":      res.Turns,
			"tool_calls": res.ToolCalls,
			"entry_id":   res.EntryID,
		})
		span.SetAttributes(attribute.String("status", string(res.Status)))
		if res.Status == StatusFailed && err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		logger.Info().
			Str("status", string(res.Status)).
			Dur("duration", res.Duration).
			Err(err).
			Msg("Compaction finished")
	}()

	if ctx.Err() != nil {
		return Result{Status: StatusCancelled}, ErrCancelled
	}

	analysis, err := c.Analyze(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNothingToCompact) {
			c.config.Notifier.Notify("Nothing to compact yet", SeverityInfo)
			return Result{Status: StatusSkipped}, err
		}
		return Result{Status: StatusFailed}, fmt.Errorf("failed to analyze session: %w", err)
	}
	res = Result{
		Status:       StatusFailed,
		FileOps:      analysis.FileOps,
		TokensBefore: analysis.Preparation.TokensBefore,
	}

	selection, ok := c.SelectModel(ctx)
	if !ok {
		c.config.Notifier.Notify("Compaction skipped: no model with a usable credential", SeverityWarning)
		res.Status = StatusSkipped
		return res, ErrNoUsableModel
	}
	res.Model = selection.Model.String()
	ctx = tracing.WithModel(ctx, res.Model)
	logger = tracing.LoggerFromContext(ctx, c.logger)

	logger.Info().
		Int("messages", len(analysis.Preparation.Messages)).
		Int("kept", analysis.Preparation.Kept()).
		Int("tokens_before", res.TokensBefore).
		Str("thinking", string(selection.ThinkingLevel)).
		Msg("Compacting session")
	c.config.Notifier.Notify(fmt.Sprintf("Compacting %d messages with %s", len(analysis.Preparation.Messages), res.Model), SeverityInfo)

	outcome, err := c.explore(ctx, analysis, selection, logger)
	res.Turns = outcome.Turns
	res.ToolCalls = outcome.ToolCalls
	res.Usage = outcome.Usage

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			c.config.Notifier.Notify("Compaction cancelled", SeverityInfo)
			res.Status = StatusCancelled
			return res, ErrCancelled
		}
		c.writeDiagnostics(ctx, analysis, selection, outcome, diagnostics.ReasonFailed, err)
		c.config.Notifier.Notify("Compaction failed: "+err.Error(), SeverityWarning)
		return res, err
	}

	if outcome.Status == agent.StatusAborted {
		c.config.Notifier.Notify("Compaction cancelled", SeverityInfo)
		res.Status = StatusCancelled
		return res, ErrCancelled
	}

	summary := strings.TrimSpace(outcome.Summary)
	summaryChars := utf8.RuneCountInString(summary)
	res.Summary = summary
	observability.RecordSummaryLength(summaryChars)

	if minChars := c.config.Options.MinSummaryChars; summaryChars < minChars {
		err := fmt.Errorf("%w: %d < %d characters", ErrSummaryTooShort, summaryChars, minChars)
		c.writeDiagnostics(ctx, analysis, selection, outcome, diagnostics.ReasonShortSummary, err)
		c.config.Notifier.Notify("Compaction skipped: "+err.Error(), SeverityWarning)
		res.Status = StatusSkipped
		return res, err
	}

	details := session.CompactionDetails{
		ModifiedFiles: analysis.FileOps.Modified,
		DeletedFiles:  analysis.FileOps.Deleted,
	}
	if !c.config.Options.IncludeTempFiles {
		details.ModifiedFiles, _ = conversation.SplitModified(analysis.FileOps.Modified)
	}

	// the summary exists now; a late cancel must not lose it
	entryID, err := c.config.Sessions.AppendCompaction(tracing.CloneContext(ctx), req.SessionKey, session.Compaction{
		Summary:          summary,
		FirstKeptEntryID: analysis.Preparation.FirstKeptEntryID,
		TokensBefore:     res.TokensBefore,
		Details:          details,
	})
	if err != nil {
		c.config.Notifier.Notify("Compaction failed: "+err.Error(), SeverityWarning)
		return res, fmt.Errorf("failed to store compaction: %w", err)
	}

	res.EntryID = entryID
	res.Status = StatusCompleted
	c.config.Notifier.Notify(fmt.Sprintf("Compaction complete: %d characters, %d tool calls", summaryChars, res.ToolCalls), SeverityInfo)
	return res, nil
}

// explore runs the agent loop over a read-only snapshot of the messages
func (c *Compactor) explore(ctx context.Context, analysis Analysis, selection models.Selection, logger zerolog.Logger) (agent.Outcome, error) {
	provider, err := c.config.Providers.NewProvider(selection)
	if err != nil {
		return agent.Outcome{}, err
	}

	sb, err := sandbox.New(c.config.Sandbox, logger)
	if err != nil {
		return agent.Outcome{}, fmt.Errorf("failed to create sandbox: %w", err)
	}
	if err := sb.Start(ctx); err != nil {
		return agent.Outcome{}, fmt.Errorf("failed to start sandbox: %w", err)
	}
	defer func() {
		if err := sb.Stop(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop sandbox")
		}
	}()

	executor, err := sandbox.NewSnapshotExecutor(sandbox.ExecutorConfig{
		Sandbox:        sb,
		MaxOutputChars: c.config.Options.MaxOutputChars,
		Logger:         logger,
	}, conversation.BuildSnapshot(analysis.Preparation.Messages))
	if err != nil {
		return agent.Outcome{}, err
	}
	defer func() {
		if err := executor.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove snapshot")
		}
	}()

	loop, err := agent.NewLoop(agent.LoopConfig{
		Provider:        provider,
		Executor:        executor,
		Model:           selection.Model.ID,
		Thinking:        selection.ThinkingLevel,
		MaxTokens:       c.config.Options.MaxTokens,
		ToolConcurrency: c.config.Options.ToolConcurrency,
		PreviewLength:   c.config.Options.PreviewLength,
		MaxTurns:        c.config.Options.MaxTurns,
		Notify: func(message string) {
			c.config.Notifier.Notify(message, SeverityInfo)
		},
		Logger: logger,
	})
	if err != nil {
		return agent.Outcome{}, err
	}

	return loop.Run(ctx, agent.RunParams{
		SystemPrompt: analysis.SystemPrompt,
		Instruction:  analysis.Instruction,
	})
}

func (c *Compactor) writeDiagnostics(ctx context.Context, analysis Analysis, selection models.Selection, outcome agent.Outcome, reason string, cause error) {
	rec := diagnostics.Record{
		SessionKey:    analysis.SessionKey,
		Reason:        reason,
		Model:         selection.Model.String(),
		ThinkingLevel: string(selection.ThinkingLevel),
		Turns:         outcome.Turns,
		ToolCalls:     outcome.ToolCalls,
		InputTokens:   outcome.Usage.InputTokens,
		OutputTokens:  outcome.Usage.OutputTokens,
		Summary:       outcome.Summary,
		Note:          analysis.Note,
		SystemPrompt:  analysis.SystemPrompt,
		Instruction:   analysis.Instruction,
		ModifiedFiles: analysis.FileOps.Modified,
		DeletedFiles:  analysis.FileOps.Deleted,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if data, err := conversation.EncodeMessages(analysis.Preparation.Messages); err == nil {
		rec.Conversation = data
	}
	if data, err := json.Marshal(outcome.Transcript); err == nil {
		rec.Transcript = data
	}

	if err := c.config.Diagnostics.Write(tracing.CloneContext(ctx), rec); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write compaction diagnostics")
	}
}
