// Package session stores conversations as JSONL files, one entry per line.
//
// An entry is either a conversation message or a compaction record that
// summarizes every message before FirstKeptEntryID.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - Entries are append-only; a compaction never rewrites earlier lines.
//
// Usage:
//
//	mgr, _ := session.New(session.Config{Dir: "/tmp/recap/sessions"})
//	id, _ := mgr.AppendMessage(ctx, "session-1", msg)
//	entries, _ := mgr.Load(ctx, "session-1")
//	_ = id
//	_ = entries
package session
