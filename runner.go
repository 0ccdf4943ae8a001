package sheetagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fortune-sheet/sheetagent/backend"
)

// DefaultMaxIterations bounds the number of model round trips per query.
const DefaultMaxIterations = 40

// HistoryEntry is one prior turn of a conversation as submitted by a
// caller. Roles other than "model" and "assistant" are treated as user
// turns.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunResult is everything one query produced: the final answer text, the
// tool calls executed along the way with their results, and, for table
// queries, the structured table extracted from the answer.
type RunResult struct {
	Text           string         `json:"text"`
	ToolCalls      []ToolCall     `json:"functionCalls"`
	ToolResults    []ToolResult   `json:"functionResults"`
	ExtractedTable map[string]any `json:"extractedTable,omitempty"`
}

// Runner drives the agent loop: model round trips alternating with tool
// execution until the model answers in plain text or the iteration cap is
// reached.
type Runner struct {
	provider      ChatProvider
	registry      *Registry
	backend       *backend.Client
	maxIterations int
	reviewPolicy  func(query string) bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxIterations overrides the model round trip cap. Values below one
// are ignored.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithReviewPolicy overrides which queries get a post-run workbook review.
// A nil policy disables the review pass.
func WithReviewPolicy(policy func(query string) bool) RunnerOption {
	return func(r *Runner) { r.reviewPolicy = policy }
}

// NewRunner wires a provider, a tool registry, and the spreadsheet client
// into a runner.
func NewRunner(provider ChatProvider, registry *Registry, client *backend.Client, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider:      provider,
		registry:      registry,
		backend:       client,
		maxIterations: DefaultMaxIterations,
		reviewPolicy:  IsFinancialModelQuery,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunQuery processes one user query to completion. Tool failures feed back
// into the loop as error payloads; only provider and setup failures return
// an error.
func (r *Runner) RunQuery(ctx context.Context, query string, history []HistoryEntry) (*RunResult, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	if r.registry == nil {
		return nil, ErrNoRegistry
	}
	if r.backend == nil {
		return nil, ErrNoBackend
	}

	sheets, err := r.backend.Sheets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not fetch sheets for prompt context")
		sheets = nil
	}

	msgs := historyMessages(history)
	msgs = append(msgs, UserMessage{
		Parts:     []Part{TextPart{Text: query}},
		Timestamp: time.Now().UnixMilli(),
	})

	req := GenerateRequest{
		SystemPrompt: SystemPrompt(sheets),
		Tools:        r.registry.Specs(),
	}

	var (
		allCalls   []ToolCall
		allResults []ToolResult
		finalText  string
		lastResult *GenerateResult
	)

	iteration := 0
	for iteration < r.maxIterations {
		req.History = msgs
		res, genErr := r.provider.Generate(ctx, req)
		if genErr != nil {
			if IsMalformedCall(genErr) {
				log.Warn().Err(genErr).Int("calls_executed", len(allCalls)).
					Msg("model emitted a malformed function call")
				if len(allCalls) == 0 {
					return nil, malformedCallGuidance(genErr)
				}
				finalText = fmt.Sprintf("Task partially completed. Executed %d function call(s), but encountered a malformed function call error. Check your spreadsheet to see the results.", len(allCalls))
				break
			}
			return nil, genErr
		}
		lastResult = &res
		msgs = append(msgs, res.Message)

		calls := validToolCalls(res.Message)
		if len(calls) == 0 {
			finalText = res.Message.TextContent()
			break
		}

		for _, part := range calls {
			call := ToolCall{CallID: part.CallID, Name: part.Name, Args: part.Args}
			log.Info().Str("tool", call.Name).Interface("args", call.Args).Msg("executing tool")
			result := r.registry.Execute(ctx, call)

			allCalls = append(allCalls, call)
			allResults = append(allResults, result)
			msgs = append(msgs, ToolResultMessage{
				CallID:    result.CallID,
				Name:      result.Name,
				IsError:   result.IsError,
				Payload:   result.Payload,
				Timestamp: time.Now().UnixMilli(),
			})
		}
		iteration++
	}

	if strings.TrimSpace(finalText) == "" {
		finalText = r.emptyAnswerText(iteration, lastResult, allCalls)
	}

	if r.reviewPolicy != nil && r.reviewPolicy(query) && len(allCalls) > 0 {
		finalText = r.appendReview(ctx, finalText)
	}

	return &RunResult{
		Text:        finalText,
		ToolCalls:   allCalls,
		ToolResults: allResults,
	}, nil
}

// RunTableQuery is RunQuery plus structured table extraction from the
// answer text. Extraction failure is not an error; ExtractedTable stays
// nil.
func (r *Runner) RunTableQuery(ctx context.Context, query string, history []HistoryEntry) (*RunResult, error) {
	res, err := r.RunQuery(ctx, query, history)
	if err != nil {
		return nil, err
	}
	res.ExtractedTable = ExtractTable(res.Text)
	return res, nil
}

// emptyAnswerText substitutes a caller-facing summary when the model ended
// the run without any text.
func (r *Runner) emptyAnswerText(iteration int, last *GenerateResult, calls []ToolCall) string {
	if iteration >= r.maxIterations {
		summary := fmt.Sprintf("Task completed after %d iterations. ", iteration)
		if len(calls) > 0 {
			summary += fmt.Sprintf("Executed %d function call(s).", len(calls))
		}
		return summary + "\n\nThe model has completed its task by executing the necessary function calls. Check your spreadsheet to see the results."
	}

	finishReason := "unknown"
	safetyInfo := ""
	if last != nil {
		if last.FinishDetail != "" {
			finishReason = last.FinishDetail
		} else {
			finishReason = string(last.StopReason)
		}
		safetyInfo = last.SafetyInfo
	}

	if last != nil && last.StopReason == StopStop && len(calls) > 0 {
		return fmt.Sprintf("Task completed successfully. Executed %d function call(s).\n\nThe model has completed its task by executing the necessary function calls. Check your spreadsheet to see the results.", len(calls))
	}

	log.Warn().Str("finish_reason", finishReason).Str("safety", safetyInfo).
		Int("calls_executed", len(calls)).Msg("model returned empty text")

	if len(calls) > 0 {
		return fmt.Sprintf("The model completed %d function call(s) but didn't provide a text summary.\n\nFinish reason: %s\n\nCheck your spreadsheet to see if the task was completed.", len(calls), finishReason)
	}

	text := fmt.Sprintf("The model returned an empty response. This is usually due to safety/blocked output or a finish reason that produced no text.\n\nIf you want, try rephrasing the request (e.g., avoid asking for 'perfectly' or extremely broad tasks) or ask it to do one step at a time.\n\nFinish reason: %s\nFunction calls executed: %d", finishReason, len(calls))
	if safetyInfo != "" {
		text += "\nSafety ratings: " + safetyInfo
	}
	return text
}

// historyMessages converts caller-submitted turns into conversation
// messages.
func historyMessages(history []HistoryEntry) []Message {
	msgs := make([]Message, 0, len(history)+2)
	for _, h := range history {
		switch h.Role {
		case "model", "assistant":
			msgs = append(msgs, AssistantMessage{Parts: []Part{TextPart{Text: h.Content}}})
		default:
			msgs = append(msgs, UserMessage{Parts: []Part{TextPart{Text: h.Content}}})
		}
	}
	return msgs
}

// validToolCalls drops calls with empty names. A model occasionally emits
// a function_call part with no name; executing it is pointless and
// answering it confuses the next round trip.
func validToolCalls(msg AssistantMessage) []ToolCallPart {
	var calls []ToolCallPart
	for _, part := range msg.ToolCalls() {
		if strings.TrimSpace(part.Name) == "" {
			log.Warn().Msg("skipping tool call with empty name")
			continue
		}
		calls = append(calls, part)
	}
	return calls
}
