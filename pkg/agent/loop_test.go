package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/recap/pkg/sandbox"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []*LLMResponse
	err       error
	requests  []LLMRequest
}

func (p *scriptedProvider) Provider() string {
	return "fake"
}

func (p *scriptedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	request.Messages = append([]AgentMessage(nil), request.Messages...)
	p.requests = append(p.requests, request)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.requests) > len(p.responses) {
		return &LLMResponse{Content: "out of script"}, nil
	}
	return p.responses[len(p.requests)-1], nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	delays   map[string]time.Duration
	failures map[string]bool
	finished []string
	onRun    func(command string)
}

func (e *fakeExecutor) Run(ctx context.Context, command string) sandbox.ToolOutput {
	if e.onRun != nil {
		e.onRun(command)
	}
	time.Sleep(e.delays[command])

	e.mu.Lock()
	e.finished = append(e.finished, command)
	e.mu.Unlock()

	if e.failures[command] {
		return sandbox.ToolOutput{Text: "boom\n[exit code: 1]", IsError: true}
	}
	return sandbox.ToolOutput{Text: "out:" + command}
}

func bashCall(id, command string) ToolCall {
	return ToolCall{ID: id, Name: ToolBash, Arguments: map[string]interface{}{"command": command}}
}

func newTestLoop(t *testing.T, provider LLMProvider, executor ToolExecutor, mutate func(cfg *LoopConfig)) *Loop {
	t.Helper()

	cfg := LoopConfig{
		Provider:        provider,
		Executor:        executor,
		Model:           "test-model",
		ToolConcurrency: 2,
		Logger:          zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	loop, err := NewLoop(cfg)
	require.NoError(t, err)
	return loop
}

func TestNewLoop(t *testing.T) {
	provider := &scriptedProvider{}
	executor := &fakeExecutor{}

	tests := []struct {
		name string
		cfg  LoopConfig
		want string
	}{
		{"missing provider", LoopConfig{Executor: executor, Model: "m"}, "provider"},
		{"missing executor", LoopConfig{Provider: provider, Model: "m"}, "tool executor"},
		{"missing model", LoopConfig{Provider: provider, Executor: executor}, "model"},
		{"negative max turns", LoopConfig{Provider: provider, Executor: executor, Model: "m", MaxTurns: -1}, "max turns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoop(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	loop, err := NewLoop(LoopConfig{Provider: provider, Executor: executor, Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 1, loop.config.ToolConcurrency)
	assert.Equal(t, DefaultPreviewLength, loop.config.PreviewLength)
}

func TestLoop_DoneOnTextOnlyResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{Content: "## Main Goal\nship it", Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}},
	}}
	executor := &fakeExecutor{}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(context.Background(), RunParams{
		SystemPrompt: "system",
		Instruction:  "summarize",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusDone, outcome.Status)
	assert.Equal(t, "## Main Goal\nship it", outcome.Summary)
	assert.Equal(t, 1, outcome.Turns)
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 5}, outcome.Usage)
	assert.Empty(t, executor.finished)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "system", req.SystemPrompt)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, []AgentMessage{{Role: RoleUser, Content: "summarize"}}, req.Messages)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, ToolBash, req.Tools[0].Name)
	assert.Equal(t, ToolShell, req.Tools[1].Name)
	assert.Equal(t, req.Tools[0].Properties, req.Tools[1].Properties)
}

func TestLoop_ToolCallsForceExecuting(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{Content: "let me look first", ToolCalls: []ToolCall{bashCall("c1", "cat INDEX.md")}},
		{Content: "summary"},
	}}
	executor := &fakeExecutor{}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(context.Background(), RunParams{Instruction: "go"})

	require.NoError(t, err)
	assert.Equal(t, StatusDone, outcome.Status)
	assert.Equal(t, "summary", outcome.Summary)
	assert.Equal(t, 2, outcome.Turns)
	assert.Equal(t, 1, outcome.ToolCalls)
	assert.Equal(t, []string{"cat INDEX.md"}, executor.finished)

	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, RoleAssistant, second[1].Role)
	assert.Equal(t, "let me look first", second[1].Content)
	assert.Equal(t, AgentMessage{
		Role:       RoleTool,
		Content:    "out:cat INDEX.md",
		ToolCallID: "c1",
		ToolName:   ToolBash,
	}, second[2])
}

func TestLoop_ResultsFollowCallOrder(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{bashCall("slow", "sleep-30"), bashCall("fast", "sleep-5")}},
		{Content: "done"},
	}}
	executor := &fakeExecutor{delays: map[string]time.Duration{
		"sleep-30": 30 * time.Millisecond,
		"sleep-5":  5 * time.Millisecond,
	}}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(context.Background(), RunParams{Instruction: "go"})
	require.NoError(t, err)

	// the fast call finishes first, but results keep the call order
	assert.Equal(t, []string{"sleep-5", "sleep-30"}, executor.finished)

	results := outcome.Transcript[2:4]
	assert.Equal(t, "slow", results[0].ToolCallID)
	assert.Equal(t, "fast", results[1].ToolCallID)
}

func TestLoop_ToolFailuresAreFlagged(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{
			bashCall("c1", "false"),
			{ID: "c2", Name: "python", Arguments: map[string]interface{}{"command": "print(1)"}},
			{ID: "c3", Name: ToolShell, Arguments: map[string]interface{}{"cmd": "ls"}},
			{ID: "c4", Name: ToolShell, Arguments: map[string]interface{}{"command": "ls"}},
		}},
		{Content: "summary"},
	}}
	executor := &fakeExecutor{failures: map[string]bool{"false": true}}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(context.Background(), RunParams{Instruction: "go"})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, outcome.Status)

	results := outcome.Transcript[2:6]
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "[exit code: 1]")

	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, `unknown tool "python"`)

	assert.True(t, results[2].IsError)
	assert.Contains(t, results[2].Content, "invalid arguments")

	assert.False(t, results[3].IsError)
	assert.ElementsMatch(t, []string{"false", "ls"}, executor.finished)
}

func TestLoop_MalformedArgumentsAreFlagged(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{
			NewToolCall("c1", ToolBash, `{"command": "grep -n`),
			NewToolCall("c2", ToolBash, ""),
			bashCall("c3", "ls"),
		}},
		{Content: "summary"},
	}}
	executor := &fakeExecutor{}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(context.Background(), RunParams{Instruction: "go"})

	require.NoError(t, err)
	assert.Equal(t, StatusDone, outcome.Status)
	assert.Equal(t, "summary", outcome.Summary)
	assert.Equal(t, []string{"ls"}, executor.finished)

	results := outcome.Transcript[2:5]
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "not a JSON object")
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "invalid arguments")
	assert.False(t, results[2].IsError)

	// the malformed call is replayed with empty arguments
	replayed := provider.requests[1].Messages[1].ToolCalls[0]
	assert.Equal(t, map[string]interface{}{}, replayed.Arguments)
}

func TestLoop_CancelledBeforeRequest(t *testing.T) {
	provider := &scriptedProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := newTestLoop(t, provider, &fakeExecutor{}, nil).Run(ctx, RunParams{Instruction: "go"})

	require.NoError(t, err)
	assert.Equal(t, StatusAborted, outcome.Status)
	assert.Empty(t, outcome.Summary)
	assert.Empty(t, provider.requests)
}

func TestLoop_CancelDuringExecutingFinishesBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{bashCall("c1", "first"), bashCall("c2", "second")}},
		{Content: "never requested"},
	}}
	executor := &fakeExecutor{
		delays: map[string]time.Duration{"second": 20 * time.Millisecond},
		onRun: func(command string) {
			if command == "first" {
				cancel()
			}
		},
	}

	outcome, err := newTestLoop(t, provider, executor, nil).Run(ctx, RunParams{Instruction: "go"})

	require.NoError(t, err)
	assert.Equal(t, StatusAborted, outcome.Status)
	assert.Len(t, provider.requests, 1)
	assert.ElementsMatch(t, []string{"first", "second"}, executor.finished)
	assert.Equal(t, 2, outcome.ToolCalls)
}

func TestLoop_CompletionErrorIsTerminal(t *testing.T) {
	upstream := errors.New("503 overloaded")
	provider := &scriptedProvider{err: upstream}

	outcome, err := newTestLoop(t, provider, &fakeExecutor{}, nil).Run(context.Background(), RunParams{Instruction: "go"})

	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.ErrorIs(t, err, upstream)
	assert.Len(t, provider.requests, 1)
	assert.Empty(t, outcome.Summary)
}

func TestLoop_MaxTurns(t *testing.T) {
	loopForever := &LLMResponse{ToolCalls: []ToolCall{bashCall("c", "ls")}}
	provider := &scriptedProvider{responses: []*LLMResponse{loopForever, loopForever, loopForever}}

	loop := newTestLoop(t, provider, &fakeExecutor{}, func(cfg *LoopConfig) { cfg.MaxTurns = 2 })
	_, err := loop.Run(context.Background(), RunParams{Instruction: "go"})

	assert.ErrorIs(t, err, ErrMaxTurnsExceeded)
	assert.Len(t, provider.requests, 2)
}

func TestLoop_Notifications(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{bashCall("c1", "ls -la"), bashCall("c2", "grep -n 'a very long pattern' messages/*.md")}},
		{Content: "done"},
	}}

	var mu sync.Mutex
	var notes []string
	loop := newTestLoop(t, provider, &fakeExecutor{}, func(cfg *LoopConfig) {
		cfg.PreviewLength = 10
		cfg.Notify = func(message string) {
			mu.Lock()
			defer mu.Unlock()
			notes = append(notes, message)
		}
	})

	_, err := loop.Run(context.Background(), RunParams{Instruction: "go"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bash: ls -la", "bash: grep -n 'a..."}, notes)
}
