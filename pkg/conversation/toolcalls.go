package conversation

// ToolCallRecord is an indexed tool invocation
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolCallIndex maps tool call ids to their invocation
type ToolCallIndex map[string]ToolCallRecord

// IndexToolCalls scans assistant messages and indexes every well-formed tool
// call by id. A repeated id overwrites the earlier record.
func IndexToolCalls(msgs []Message) ToolCallIndex {
	index := make(ToolCallIndex)
	for _, msg := range msgs {
		if msg.Role != RoleAssistant {
			continue
		}
		for _, block := range msg.Content {
			if block.Kind != BlockToolCall || block.ID == "" || block.Name == "" {
				continue
			}
			index[block.ID] = ToolCallRecord{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Arguments,
			}
		}
	}
	return index
}

// StringArg returns a string-valued argument, if present
func (r ToolCallRecord) StringArg(key string) (string, bool) {
	v, ok := r.Arguments[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
