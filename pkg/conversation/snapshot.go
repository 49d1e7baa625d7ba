package conversation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Snapshot paths, relative to the sandbox working directory
const (
	SnapshotConversationPath = "conversation.json"
	SnapshotIndexPath        = "INDEX.md"
	SnapshotMessagesDir      = "messages"
)

// Snapshot is an immutable path -> content mapping exposed to the sandbox.
type Snapshot struct {
	files map[string]string
}

// NewSnapshot copies files into a new snapshot
func NewSnapshot(files map[string]string) Snapshot {
	cp := make(map[string]string, len(files))
	for k, v := range files {
		cp[k] = v
	}
	return Snapshot{files: cp}
}

// Paths returns all paths in sorted order
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Read returns the content of a path
func (s Snapshot) Read(path string) (string, bool) {
	content, ok := s.files[path]
	return content, ok
}

// Len returns the number of files
func (s Snapshot) Len() int {
	return len(s.files)
}

// BuildSnapshot renders a conversation into the file layout the exploring agent sees:
// the full wire JSON, one markdown file per message, and an index.
func BuildSnapshot(msgs []Message) Snapshot {
	files := make(map[string]string, len(msgs)+2)

	raw, err := EncodeMessages(msgs)
	if err != nil {
		raw = []byte(fmt.Sprintf("[] // encode failed: %v", err))
	}
	files[SnapshotConversationPath] = string(raw) + "\n"

	var index strings.Builder
	index.WriteString("# Conversation index\n\n")
	fmt.Fprintf(&index, "Messages: %d\n\n", len(msgs))

	for i, msg := range msgs {
		name := fmt.Sprintf("%s/%04d-%s.md", SnapshotMessagesDir, i+1, msg.Role)
		files[name] = renderMessage(i+1, msg)
		fmt.Fprintf(&index, "- %s %s\n", name, summarizeLine(msg))
	}
	files[SnapshotIndexPath] = index.String()

	return Snapshot{files: files}
}

func renderMessage(n int, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Message %d (%s)\n", n, msg.Role)
	if msg.Role == RoleToolResult {
		fmt.Fprintf(&b, "tool_call_id: %s\ntool_name: %s\nis_error: %t\n", msg.ToolCallID, msg.ToolName, msg.IsError)
	}
	b.WriteString("\n")

	for _, block := range msg.Content {
		switch block.Kind {
		case BlockText:
			b.WriteString(block.Text)
			b.WriteString("\n")
		case BlockToolCall:
			args, err := json.Marshal(block.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			fmt.Fprintf(&b, "\n[tool call] %s id=%s\n%s\n", block.Name, block.ID, args)
		case BlockToolResult:
		}
	}
	return b.String()
}

// indexPreviewRunes bounds the one-line preview of each message in INDEX.md
const indexPreviewRunes = 80

func summarizeLine(msg Message) string {
	text := strings.Join(strings.Fields(msg.TextContent()), " ")
	if runes := []rune(text); len(runes) > indexPreviewRunes {
		text = string(runes[:indexPreviewRunes]) + "..."
	}
	if calls := msg.ToolCalls(); len(calls) > 0 {
		names := make([]string, len(calls))
		for i, c := range calls {
			names[i] = c.Name
		}
		return fmt.Sprintf("[tools: %s] %s", strings.Join(names, ","), text)
	}
	if msg.IsError {
		return "[error] " + text
	}
	return text
}
