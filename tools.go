package sheetagent

// ToolSpec is the declarative tool schema exposed to the model. Parameters
// is a JSON-schema object; the "required" list drives argument validation
// before a tool runs.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RequiredParams returns the schema's required argument names.
func (s ToolSpec) RequiredParams() []string {
	raw, ok := s.Parameters["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
		return out
	default:
		return nil
	}
}

// ToolCall is a normalized tool call request produced by the model.
type ToolCall struct {
	CallID string         `json:"call_id,omitempty"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
}

// ToolResult is the normalized tool execution result. Payload is a plain
// JSON object; execution failures set IsError and a payload of the form
// {error: true, message, details}.
type ToolResult struct {
	CallID  string         `json:"call_id,omitempty"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
	IsError bool           `json:"is_error,omitempty"`
}
