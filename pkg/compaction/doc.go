// Package compaction replaces the older part of a session with a summary
// written by an exploring agent.
//
// A run loads the session, picks the cut point, extracts file operations and
// the user's focus note, selects a model, and lets the agent explore a
// read-only snapshot of the conversation until it answers with a summary.
//
// Invariants:
// - Only a completed run writes to the session; every other outcome leaves
//   the session file untouched.
// - No usable model, a too-short summary and cancellation are non-fatal and
//   reported through Result.Status.
// - Diagnostics are written for failed runs and too-short summaries only.
//
// Usage:
//
//	c, _ := compaction.New(compaction.Config{...})
//	res, err := c.Compact(ctx, compaction.Request{SessionKey: "session-1"})
//	if errors.Is(err, compaction.ErrNoUsableModel) {
//		// skipped
//	}
//	_ = res
package compaction
