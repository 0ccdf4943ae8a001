package sheetagent

import "encoding/json"

// PartType describes the kind of content in a part.
type PartType string

const (
	PartText     PartType = "text"
	PartToolCall PartType = "tool_call"
)

// Part is a structured message fragment.
type Part interface {
	partType() PartType
}

// TextPart represents text content.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) partType() PartType { return PartText }

func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Type PartType `json:"type"`
		alias
	}{PartText, alias(p)})
}

// ToolCallPart represents a tool call requested by the model. Args are
// always plain JSON values; providers normalize their native argument
// shapes before constructing one.
type ToolCallPart struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
}

func (ToolCallPart) partType() PartType { return PartToolCall }

func (p ToolCallPart) MarshalJSON() ([]byte, error) {
	type alias ToolCallPart
	return json.Marshal(struct {
		Type PartType `json:"type"`
		alias
	}{PartToolCall, alias(p)})
}
