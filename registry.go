package sheetagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fortune-sheet/sheetagent/backend"
)

// ToolHandler executes one tool call. The returned value is shaped into
// the result payload handed back to the model; errors become error
// payloads rather than aborting the run.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	spec    ToolSpec
	handler ToolHandler
}

// Registry holds the tools exposed to the model. Registration order is
// the order specs are advertised in.
type Registry struct {
	tools map[string]registeredTool
	order []string
}

// NewEmptyRegistry returns a registry with no tools.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: map[string]registeredTool{}}
}

// Register adds a tool. Re-registering a name replaces the handler but
// keeps the original position.
func (r *Registry) Register(spec ToolSpec, handler ToolHandler) {
	if _, exists := r.tools[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.tools[spec.Name] = registeredTool{spec: spec, handler: handler}
}

// Specs returns the tool specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Execute runs one tool call and always returns a result: unknown tools,
// missing required arguments, and handler failures all come back as error
// payloads so the model can react to them.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	res := ToolResult{CallID: call.CallID, Name: call.Name}

	tool, ok := r.tools[call.Name]
	if !ok {
		res.IsError = true
		res.Payload = errorPayload(fmt.Sprintf("Unknown tool: %s", call.Name), nil)
		return res
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	for _, field := range tool.spec.RequiredParams() {
		v, present := args[field]
		if !present || v == nil {
			res.IsError = true
			res.Payload = errorPayload(fmt.Sprintf("%s is required", field), nil)
			return res
		}
		if s, isStr := v.(string); isStr && s == "" {
			res.IsError = true
			res.Payload = errorPayload(fmt.Sprintf("%s is required", field), nil)
			return res
		}
	}

	out, err := tool.handler(ctx, args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		res.IsError = true
		res.Payload = errorPayload(err.Error(), errorDetails(err))
		return res
	}
	res.Payload = resultPayload(out)
	return res
}

// errorPayload is the error shape every failed tool call reports. Details
// fall back to the message so the key is always present.
func errorPayload(message string, details any) map[string]any {
	if details == nil {
		details = message
	}
	return map[string]any{"error": true, "message": message, "details": details}
}

// errorDetails surfaces the spreadsheet service's own error body when the
// failure was a rejected request.
func errorDetails(err error) any {
	var se *backend.StatusError
	if errors.As(err, &se) && se.Body != nil {
		return se.Body
	}
	return nil
}

// resultPayload shapes a handler's return value into the map handed back
// to the model. Structs and maps flatten to their plain JSON object form;
// everything else is wrapped under "result". Plain means any provider can
// re-encode the payload without knowing its concrete types.
func resultPayload(v any) map[string]any {
	if v == nil {
		return map[string]any{"result": nil}
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"result": fmt.Sprint(v)}
	}
	var m map[string]any
	if json.Unmarshal(buf, &m) == nil {
		return m
	}
	var anyVal any
	if json.Unmarshal(buf, &anyVal) == nil {
		return map[string]any{"result": anyVal}
	}
	return map[string]any{"result": string(buf)}
}
