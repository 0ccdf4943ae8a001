// Package testutil provides test doubles for the agent loop: a scripted
// chat provider and an in-memory spreadsheet service.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/fortune-sheet/sheetagent"
)

// SkipIfNoEnv skips the test if the environment variable is not set.
func SkipIfNoEnv(t *testing.T, envVar string) {
	t.Helper()
	if os.Getenv(envVar) == "" {
		t.Skipf("skipping: %s not set", envVar)
	}
}

// ScriptedProvider replays a fixed sequence of results, one per Generate
// call. After the script runs out it returns Fallback, or the last result
// again when Fallback is nil.
type ScriptedProvider struct {
	Script   []ScriptStep
	Fallback *sheetagent.GenerateResult

	Requests []sheetagent.GenerateRequest
	calls    int
}

// ScriptStep is one scripted Generate outcome.
type ScriptStep struct {
	Result sheetagent.GenerateResult
	Err    error
}

// Generate replays the next scripted step and records the request.
func (p *ScriptedProvider) Generate(ctx context.Context, req sheetagent.GenerateRequest) (sheetagent.GenerateResult, error) {
	p.Requests = append(p.Requests, req)
	idx := p.calls
	p.calls++
	if idx < len(p.Script) {
		step := p.Script[idx]
		return step.Result, step.Err
	}
	if p.Fallback != nil {
		return *p.Fallback, nil
	}
	if len(p.Script) > 0 {
		last := p.Script[len(p.Script)-1]
		return last.Result, last.Err
	}
	return sheetagent.GenerateResult{}, nil
}

// Calls reports how many round trips the provider served.
func (p *ScriptedProvider) Calls() int { return p.calls }

// TextResult builds a plain-text assistant turn that ends the loop.
func TextResult(text string) sheetagent.GenerateResult {
	return sheetagent.GenerateResult{
		Message: sheetagent.AssistantMessage{
			Parts: []sheetagent.Part{sheetagent.TextPart{Text: text}},
		},
		StopReason:   sheetagent.StopStop,
		FinishDetail: "STOP",
	}
}

// ToolCallResult builds an assistant turn that requests the given tool
// calls.
func ToolCallResult(calls ...sheetagent.ToolCallPart) sheetagent.GenerateResult {
	msg := sheetagent.AssistantMessage{}
	for _, call := range calls {
		msg.Parts = append(msg.Parts, call)
	}
	return sheetagent.GenerateResult{
		Message:      msg,
		StopReason:   sheetagent.StopToolUse,
		FinishDetail: "STOP",
	}
}

// EmptyResult builds an assistant turn with no parts at all.
func EmptyResult(stop sheetagent.StopReason, detail string) sheetagent.GenerateResult {
	return sheetagent.GenerateResult{
		Message:      sheetagent.AssistantMessage{},
		StopReason:   stop,
		FinishDetail: detail,
	}
}
