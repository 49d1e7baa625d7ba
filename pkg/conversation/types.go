package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
)

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleToolResult:
		return true
	}
	return false
}

// BlockKind tags a ContentBlock variant
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolCall   BlockKind = "toolCall"
	BlockToolResult BlockKind = "toolResult"
)

// ContentBlock is one element of a message body. Only the fields belonging to
// Kind are meaningful; use the constructors instead of filling fields by hand.
type ContentBlock struct {
	Kind BlockKind

	// BlockText
	Text string

	// BlockToolCall
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Text creates a text block
func Text(s string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: s}
}

// ToolCall creates a tool call block
func ToolCall(id, name string, args map[string]interface{}) ContentBlock {
	return ContentBlock{Kind: BlockToolCall, ID: id, Name: name, Arguments: args}
}

// ToolResultMarker creates the marker block carried by tool result messages
func ToolResultMarker() ContentBlock {
	return ContentBlock{Kind: BlockToolResult}
}

type blockWire struct {
	Type      BlockKind              `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// MarshalJSON encodes the block with its type tag
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := blockWire{Type: b.Kind}
	switch b.Kind {
	case BlockText:
		w.Text = b.Text
	case BlockToolCall:
		w.ID, w.Name, w.Arguments = b.ID, b.Name, b.Arguments
	case BlockToolResult:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, b.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged block and rejects unknown tags
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case BlockText:
		*b = Text(w.Text)
	case BlockToolCall:
		*b = ToolCall(w.ID, w.Name, w.Arguments)
	case BlockToolResult:
		*b = ToolResultMarker()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, w.Type)
	}
	return nil
}

// Message is a single conversation turn
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	// Tool result linkage; only set on RoleToolResult messages.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	IsError    bool   `json:"isError,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// UnmarshalJSON accepts either a block array or a plain string as content.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var w struct {
		alias
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Role.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, w.Role)
	}

	*m = Message(w.alias)
	m.Content = nil

	raw := bytes.TrimSpace(w.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		m.Content = []ContentBlock{Text(s)}
		return nil
	}
	return json.Unmarshal(raw, &m.Content)
}

// TextContent joins all text blocks of the message with newlines
func (m Message) TextContent() string {
	var parts []string
	for _, block := range m.Content {
		if block.Kind == BlockText {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCalls returns the tool call blocks of the message in order
func (m Message) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, block := range m.Content {
		if block.Kind == BlockToolCall {
			calls = append(calls, block)
		}
	}
	return calls
}

// DecodeMessages parses the wire representation (a JSON array of messages)
func DecodeMessages(data []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return msgs, nil
}

// EncodeMessages renders messages in the wire representation
func EncodeMessages(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.MarshalIndent(msgs, "", "  ")
}
