// Package agent runs the exploring agent: a loop that alternates completion
// requests with concurrent shell tool calls until the model answers with text.
//
// Invariants:
// - Completion requests are strictly sequential; only tool calls of one turn run in parallel.
// - Tool results are appended in the order of the calls that produced them.
// - Cancellation is checked only before each completion request.
// - A completion error ends the run; a failing tool call never does.
//
// Usage:
//
//	loop, _ := agent.NewLoop(agent.LoopConfig{
//		Provider: provider,
//		Executor: executor,
//		Model:    "claude-haiku-4-5",
//	})
//	outcome, err := loop.Run(ctx, agent.RunParams{
//		SystemPrompt: system,
//		Instruction:  instruction,
//	})
//	_ = outcome
package agent
