package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Tool names the model may call; both take the same single argument
const (
	ToolBash  = "bash"
	ToolShell = "shell"
)

// DefaultPreviewLength bounds the command preview in notifications
const DefaultPreviewLength = 80

// ToolSpec declares a tool to the model
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]interface{}
	Required    []string
}

// Schema returns the full JSON schema of the tool input
func (s ToolSpec) Schema() map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": s.Properties,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

func commandTool(name string) ToolSpec {
	return ToolSpec{
		Name:        name,
		Description: "Run a read-only POSIX shell command against the conversation files in the working directory and return its output.",
		Properties: map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to run",
			},
		},
		Required: []string{"command"},
	}
}

// Tools returns the tool declarations sent with every completion request
func Tools() []ToolSpec {
	return []ToolSpec{commandTool(ToolBash), commandTool(ToolShell)}
}

// toolValidator checks tool names and arguments before dispatch
type toolValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func newToolValidator(specs []ToolSpec) (*toolValidator, error) {
	v := &toolValidator{schemas: make(map[string]*gojsonschema.Schema, len(specs))}
	for _, spec := range specs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", spec.Name, err)
		}
		v.schemas[spec.Name] = schema
	}
	return v, nil
}

// Validate returns the command to run or a readable validation error
func (v *toolValidator) Validate(call ToolCall) (string, error) {
	schema, ok := v.schemas[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q (available: %s, %s)", call.Name, ToolBash, ToolShell)
	}

	if call.ArgumentsError != "" {
		return "", fmt.Errorf("invalid arguments: not a JSON object (%s): %s", call.ArgumentsError, truncateRunes(call.RawArguments, DefaultPreviewLength))
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return "", fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}

	command, _ := args["command"].(string)
	return command, nil
}

// Preview renders the notification text for a tool call: "<tool>: <preview>"
// with the preview cut to maxLen characters and "..." appended when cut.
func Preview(call ToolCall, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPreviewLength
	}

	text, ok := call.Arguments["command"].(string)
	switch {
	case ok:
	case call.RawArguments != "":
		text = call.RawArguments
	default:
		raw, err := json.Marshal(call.Arguments)
		if err != nil {
			raw = []byte("{}")
		}
		text = string(raw)
	}
	return call.Name + ": " + truncateRunes(strings.Join(strings.Fields(text), " "), maxLen)
}

func truncateRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}

// NewToolCall decodes the JSON arguments a provider sent for a call. Text
// that is not a JSON object is kept on the call so dispatch reports it to
// the model as a failed tool result; empty text decodes as no arguments.
func NewToolCall(id, name, rawArguments string) ToolCall {
	call := ToolCall{ID: id, Name: name, Arguments: map[string]interface{}{}}
	if strings.TrimSpace(rawArguments) == "" {
		return call
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawArguments), &args); err != nil {
		call.RawArguments = rawArguments
		call.ArgumentsError = err.Error()
		return call
	}
	if args != nil {
		call.Arguments = args
	}
	return call
}
