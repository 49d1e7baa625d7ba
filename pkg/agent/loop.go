package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/recap/internal/observability"
	"github.com/harun/recap/internal/tracing"
	"github.com/harun/recap/pkg/concurrency"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/sandbox"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "recap.agent"

// ToolExecutor runs one shell command against the conversation snapshot.
// Failures must be reported through ToolOutput.IsError.
type ToolExecutor interface {
	Run(ctx context.Context, command string) sandbox.ToolOutput
}

// NotifyFunc receives a progress message; it may be called from several goroutines
type NotifyFunc func(message string)

// LoopConfig holds loop configuration
type LoopConfig struct {
	Provider LLMProvider
	Executor ToolExecutor
	Model    string
	Thinking models.ThinkingLevel

	// MaxTokens bounds each completion (0 = provider default)
	MaxTokens int

	// ToolConcurrency bounds parallel tool calls within one turn (< 1 = 1)
	ToolConcurrency int

	// PreviewLength bounds the command preview in notifications
	PreviewLength int

	// MaxTurns fails the run after this many completion requests (0 = unlimited)
	MaxTurns int

	Notify NotifyFunc
	Logger zerolog.Logger
}

// RunParams are the prompts for one run
type RunParams struct {
	SystemPrompt string
	Instruction  string
}

// Loop drives the request/execute cycle of the exploring agent
type Loop struct {
	config    LoopConfig
	tools     []ToolSpec
	validator *toolValidator
}

// NewLoop creates a new agent loop
func NewLoop(cfg LoopConfig) (*Loop, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns cannot be negative")
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultPreviewLength
	}
	cfg.ToolConcurrency = concurrency.NormalizeLimit(cfg.ToolConcurrency)

	tools := Tools()
	validator, err := newToolValidator(tools)
	if err != nil {
		return nil, err
	}

	return &Loop{config: cfg, tools: tools, validator: validator}, nil
}

// Run executes the loop until the model answers without tool calls (Done),
// the context is cancelled before a request (Aborted), or a completion fails.
func (l *Loop) Run(ctx context.Context, params RunParams) (Outcome, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"agent.run",
		attribute.String("provider", l.config.Provider.Provider()),
		attribute.String("model", l.config.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, l.config.Logger)

	outcome := Outcome{
		Transcript: []AgentMessage{{Role: RoleUser, Content: params.Instruction}},
	}
	defer func() { observability.RecordLoopTurns(outcome.Turns) }()

	for {
		// Requesting
		if ctx.Err() != nil {
			logger.Info().Int("turns", outcome.Turns).Msg("Agent loop aborted before completion request")
			outcome.Status = StatusAborted
			span.SetAttributes(attribute.String("status", string(StatusAborted)))
			return outcome, nil
		}
		if l.config.MaxTurns > 0 && outcome.Turns >= l.config.MaxTurns {
			err := fmt.Errorf("%w: %d", ErrMaxTurnsExceeded, l.config.MaxTurns)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return outcome, err
		}

		response, err := l.complete(ctx, params.SystemPrompt, outcome.Transcript)
		outcome.Turns++
		if err != nil {
			logger.Error().Err(err).Int("turn", outcome.Turns).Msg("Completion request failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return outcome, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
		}
		outcome.Usage.Add(response.Usage)

		outcome.Transcript = append(outcome.Transcript, AgentMessage{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
			Thinking:  response.Thinking,
		})

		if len(response.ToolCalls) == 0 {
			outcome.Status = StatusDone
			outcome.Summary = response.Content
			logger.Debug().
				Int("turns", outcome.Turns).
				Int("tool_calls", outcome.ToolCalls).
				Int("summary_chars", len(response.Content)).
				Msg("Agent loop done")
			span.SetAttributes(attribute.String("status", string(StatusDone)))
			return outcome, nil
		}

		// Executing
		results, err := l.execute(ctx, response.ToolCalls)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return outcome, err
		}
		outcome.ToolCalls += len(results)
		outcome.Transcript = append(outcome.Transcript, results...)
	}
}

func (l *Loop) complete(ctx context.Context, systemPrompt string, transcript []AgentMessage) (*LLMResponse, error) {
	provider := l.config.Provider.Provider()
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.completion", attribute.String("provider", provider))
	defer span.End()

	start := time.Now()
	response, err := l.config.Provider.Call(ctx, LLMRequest{
		Model:        l.config.Model,
		SystemPrompt: systemPrompt,
		Messages:     transcript,
		Tools:        l.tools,
		MaxTokens:    l.config.MaxTokens,
		Thinking:     l.config.Thinking,
	})
	observability.RecordCompletion(provider, time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if response == nil {
		return &LLMResponse{}, nil
	}
	return response, nil
}

// execute runs one turn of tool calls and returns their result messages in call order
func (l *Loop) execute(ctx context.Context, calls []ToolCall) ([]AgentMessage, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.tools", attribute.Int("tool_calls", len(calls)))
	defer span.End()

	return concurrency.Map(ctx, calls, l.config.ToolConcurrency, func(ctx context.Context, call ToolCall, _ int) (AgentMessage, error) {
		if l.config.Notify != nil {
			l.config.Notify(Preview(call, l.config.PreviewLength))
		}

		start := time.Now()
		out := l.dispatch(ctx, call)
		observability.RecordToolExecution(call.Name, time.Since(start), !out.IsError)

		return AgentMessage{
			Role:       RoleTool,
			Content:    out.Text,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    out.IsError,
		}, nil
	})
}

func (l *Loop) dispatch(ctx context.Context, call ToolCall) sandbox.ToolOutput {
	command, err := l.validator.Validate(call)
	if err != nil {
		return sandbox.ToolOutput{Text: "error: " + err.Error(), IsError: true}
	}
	if strings.TrimSpace(command) == "" {
		return sandbox.ToolOutput{Text: "error: command is empty", IsError: true}
	}
	return l.config.Executor.Run(ctx, command)
}
