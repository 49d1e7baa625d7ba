package conversation

import (
	"regexp"
	"strings"
)

var compactCommand = regexp.MustCompile(`(?is)^/compact(?:\s+(.*))?$`)

// ExtractUserNote finds the focus note of the most recent /compact command.
// The newest matching message decides: a bare /compact yields no note even if
// an older command carried one.
func ExtractUserNote(msgs []Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role != RoleUser {
			continue
		}
		m := compactCommand.FindStringSubmatch(strings.TrimSpace(msg.TextContent()))
		if m == nil {
			continue
		}
		note := strings.TrimSpace(m[1])
		if note == "" {
			return "", false
		}
		return note, true
	}
	return "", false
}

// ResolveNote prefers a non-blank override over the conversation scan
func ResolveNote(override string, msgs []Message) (string, bool) {
	if note := strings.TrimSpace(override); note != "" {
		return note, true
	}
	return ExtractUserNote(msgs)
}
