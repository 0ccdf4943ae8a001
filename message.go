package sheetagent

import "encoding/json"

// Role is the speaker role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the canonical conversation unit. Order is significant: a turn
// carrying tool calls must be immediately followed by the matching tool
// result messages.
type Message interface {
	role() Role
}

// UserMessage represents a user input message.
type UserMessage struct {
	Parts     []Part `json:"parts,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (UserMessage) role() Role { return RoleUser }

func (m UserMessage) MarshalJSON() ([]byte, error) {
	type alias UserMessage
	return json.Marshal(struct {
		Role Role `json:"role"`
		alias
	}{RoleUser, alias(m)})
}

// AssistantMessage represents a model response message.
type AssistantMessage struct {
	Parts      []Part     `json:"parts,omitempty"`
	Timestamp  int64      `json:"timestamp,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

func (AssistantMessage) role() Role { return RoleAssistant }

func (m AssistantMessage) MarshalJSON() ([]byte, error) {
	type alias AssistantMessage
	return json.Marshal(struct {
		Role Role `json:"role"`
		alias
	}{RoleAssistant, alias(m)})
}

// ToolResultMessage represents a tool execution result message. Payload is
// always a plain JSON object so it can be handed back to any provider.
type ToolResultMessage struct {
	CallID    string         `json:"call_id,omitempty"`
	Name      string         `json:"name"`
	IsError   bool           `json:"is_error,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

func (ToolResultMessage) role() Role { return RoleTool }

func (m ToolResultMessage) MarshalJSON() ([]byte, error) {
	type alias ToolResultMessage
	return json.Marshal(struct {
		Role Role `json:"role"`
		alias
	}{RoleTool, alias(m)})
}

// StopReason explains why generation stopped, normalized across providers.
type StopReason string

const (
	StopStop    StopReason = "stop"
	StopLength  StopReason = "length"
	StopToolUse StopReason = "tool_use"
	StopSafety  StopReason = "safety"
	StopOther   StopReason = "other"
)

// Usage reports token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TextContent concatenates the text parts of an assistant message.
func (m AssistantMessage) TextContent() string {
	var out string
	for _, part := range m.Parts {
		if p, ok := part.(TextPart); ok {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns the tool call parts of an assistant message in order.
func (m AssistantMessage) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, part := range m.Parts {
		if p, ok := part.(ToolCallPart); ok {
			calls = append(calls, p)
		}
	}
	return calls
}
