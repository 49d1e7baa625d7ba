package agent

// Role identifies the author of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// AgentMessage is one entry of the transcript owned by a single Run
type AgentMessage struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Thinking   []ThinkingBlock `json:"thinking,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`

	// RawArguments holds the provider text when it was not a JSON object;
	// Arguments is then empty and ArgumentsError says why.
	RawArguments   string `json:"raw_arguments,omitempty"`
	ArgumentsError string `json:"arguments_error,omitempty"`
}

// ThinkingBlock is provider reasoning that must be replayed verbatim
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Status is the terminal state of a run
type Status string

const (
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
)

// Outcome is the result of a run that did not fail
type Outcome struct {
	Status     Status         `json:"status"`
	Summary    string         `json:"summary,omitempty"`
	Turns      int            `json:"turns"`
	ToolCalls  int            `json:"tool_calls"`
	Usage      TokenUsage     `json:"usage"`
	Transcript []AgentMessage `json:"transcript"`
}
