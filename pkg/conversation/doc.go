// Package conversation models a raw agent conversation and extracts the facts
// a compaction run needs from it.
//
// Invariants:
// - Content blocks are a closed set (text, tool call, tool result marker); decoding
//   rejects any other type tag.
// - Every analysis function is pure: same input, same output, no I/O.
// - FileOps.Modified and FileOps.Deleted are deduplicated and disjoint.
//
// Usage:
//
//	msgs, _ := conversation.DecodeMessages(raw)
//	ops := conversation.ExtractFileOps(msgs)
//	note, ok := conversation.ResolveNote(override, msgs)
//	snap := conversation.BuildSnapshot(msgs)
package conversation
