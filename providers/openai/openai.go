// Package openai implements the chat provider on OpenAI-compatible chat
// completion APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/pkg/errors"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/providers/base"
)

// DefaultModel is used when no model is specified.
const DefaultModel = "gpt-4o-mini"

// Config configures the OpenAI provider.
type Config struct {
	base.Config
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL, for OpenAI-compatible endpoints.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTemperature sets the temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = &t }
}

// WithMaxOutputTokens sets the max output tokens.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = &n }
}

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// Provider is a non-streaming chat completion provider.
type Provider struct {
	client openai.Client
	model  string
	cfg    Config
	debug  *base.DebugLogger
}

// New creates a Provider for the given model. It reads OPENAI_API_KEY and
// OPENAI_BASE_URL from the environment when not explicitly set.
func New(model string, opts ...Option) (*Provider, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	base.ApplyEnvDefaults(&cfg.Config, "OPENAI_API_KEY", "OPENAI_BASE_URL")
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	if model == "" {
		model = DefaultModel
	}

	var reqOpts []option.RequestOption
	reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	debug, err := base.NewDebugLogger(cfg.DebugPath, "openai", model)
	if err != nil {
		return nil, errors.Wrap(err, "openai: open debug log")
	}
	return &Provider{
		client: openai.NewClient(reqOpts...),
		model:  model,
		cfg:    cfg,
		debug:  debug,
	}, nil
}

// Close releases the debug log if one is open.
func (p *Provider) Close() error { return p.debug.Close() }

// Generate performs one blocking model round trip.
func (p *Provider) Generate(ctx context.Context, req sheetagent.GenerateRequest) (sheetagent.GenerateResult, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return sheetagent.GenerateResult{}, err
	}
	_ = p.debug.Log("request", map[string]any{"model": p.model, "messages": len(params.Messages)})

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return sheetagent.GenerateResult{}, errors.Wrap(err, "openai: chat completion")
	}
	_ = p.debug.Log("response", completion)

	if len(completion.Choices) == 0 {
		return sheetagent.GenerateResult{}, errors.New("openai: response has no choices")
	}
	choice := completion.Choices[0]

	msg := sheetagent.AssistantMessage{}
	if choice.Message.Content != "" {
		msg.Parts = append(msg.Parts, sheetagent.TextPart{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		var args map[string]any
		if raw := call.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return sheetagent.GenerateResult{}, &sheetagent.MalformedCallError{
					Detail: fmt.Sprintf("tool call %s carries invalid argument JSON: %v", call.Function.Name, err),
				}
			}
		}
		msg.Parts = append(msg.Parts, sheetagent.ToolCallPart{
			CallID: call.ID,
			Name:   call.Function.Name,
			Args:   args,
		})
	}

	result := sheetagent.GenerateResult{
		Message:      msg,
		StopReason:   stopReason(choice.FinishReason, len(msg.ToolCalls()) > 0),
		FinishDetail: choice.FinishReason,
	}
	if completion.Usage.TotalTokens > 0 {
		usage := &sheetagent.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		}
		result.Usage = usage
		result.Message.Usage = usage
	}
	return result, nil
}

func (p *Provider) buildParams(req sheetagent.GenerateRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
	}
	if p.cfg.Temperature != nil {
		params.Temperature = openai.Float(*p.cfg.Temperature)
	}
	if p.cfg.MaxOutputTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*p.cfg.MaxOutputTokens))
	}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.History {
		switch m := msg.(type) {
		case sheetagent.UserMessage:
			params.Messages = append(params.Messages, openai.UserMessage(textContent(m.Parts)))
		case sheetagent.AssistantMessage:
			converted, err := convertAssistantMessage(m)
			if err != nil {
				return params, err
			}
			params.Messages = append(params.Messages, converted)
		case sheetagent.ToolResultMessage:
			content, err := json.Marshal(m.Payload)
			if err != nil {
				return params, errors.Wrap(err, "openai: encode tool result")
			}
			params.Messages = append(params.Messages, openai.ToolMessage(string(content), m.CallID))
		}
	}

	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  shared.FunctionParameters(spec.Parameters),
		}))
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}
	return params, nil
}

func convertAssistantMessage(m sheetagent.AssistantMessage) (openai.ChatCompletionMessageParamUnion, error) {
	msg := openai.ChatCompletionAssistantMessageParam{}

	if text := textContent(m.Parts); text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	for _, call := range m.ToolCalls() {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, errors.Wrapf(err, "openai: encode arguments for %s", call.Name)
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.CallID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(args),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}, nil
}

func textContent(parts []sheetagent.Part) string {
	var text string
	for _, part := range parts {
		if tp, ok := part.(sheetagent.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

func stopReason(finish string, hasToolCalls bool) sheetagent.StopReason {
	if hasToolCalls {
		return sheetagent.StopToolUse
	}
	switch finish {
	case "stop":
		return sheetagent.StopStop
	case "length":
		return sheetagent.StopLength
	case "content_filter":
		return sheetagent.StopSafety
	case "tool_calls":
		return sheetagent.StopToolUse
	default:
		return sheetagent.StopOther
	}
}
