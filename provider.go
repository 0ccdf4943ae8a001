package sheetagent

import "context"

// GenerateRequest is the provider-agnostic generation input.
type GenerateRequest struct {
	SystemPrompt string
	History      []Message
	Tools        []ToolSpec
}

// GenerateResult is the provider-agnostic generation output.
type GenerateResult struct {
	Message    AssistantMessage
	StopReason StopReason
	// FinishDetail carries the provider's raw finish reason, e.g. "STOP"
	// or "MAX_TOKENS", for diagnostics in synthesized status messages.
	FinishDetail string
	// SafetyInfo carries provider safety metadata when a response was
	// blocked or flagged; empty otherwise.
	SafetyInfo string
	Usage      *Usage
}

// ChatProvider is the unified interface implemented by model providers.
// Generate blocks for one full model round trip. Implementations must
// translate their wire shapes (roles, parts, function-call records) to the
// canonical types at this boundary and normalize all tool-call arguments
// to plain JSON values.
type ChatProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}
