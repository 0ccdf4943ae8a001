// Package gemini implements the chat provider on the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/providers/base"
)

// DefaultModel is used when no model is specified.
const DefaultModel = "gemini-2.5-flash"

// Config configures the Gemini provider.
type Config struct {
	base.Config
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL.
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

// Provider is a non-streaming Gemini chat provider.
type Provider struct {
	client *genai.Client
	model  string
	cfg    Config
	debug  *base.DebugLogger
}

// New creates a Provider for the given model. It reads GEMINI_API_KEY
// (or GOOGLE_API_KEY) and GEMINI_BASE_URL from the environment when not
// explicitly set.
func New(ctx context.Context, model string, opts ...Option) (*Provider, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	base.ApplyEnvDefaults(&cfg.Config, "GEMINI_API_KEY", "GEMINI_BASE_URL")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: create client")
	}

	debug, err := base.NewDebugLogger(cfg.DebugPath, "gemini", model)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: open debug log")
	}
	return &Provider{client: client, model: model, cfg: cfg, debug: debug}, nil
}

// Close releases the debug log if one is open.
func (p *Provider) Close() error { return p.debug.Close() }

// Generate performs one blocking model round trip.
func (p *Provider) Generate(ctx context.Context, req sheetagent.GenerateRequest) (sheetagent.GenerateResult, error) {
	contents := toContents(req.History)
	config := p.generateConfig(req)

	_ = p.debug.Log("request", map[string]any{"model": p.model, "contents": len(contents)})

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		if strings.Contains(err.Error(), "MALFORMED_FUNCTION_CALL") {
			return sheetagent.GenerateResult{}, &sheetagent.MalformedCallError{Detail: err.Error()}
		}
		return sheetagent.GenerateResult{}, errors.Wrap(err, "gemini: generate")
	}
	_ = p.debug.Log("response", resp)

	if len(resp.Candidates) == 0 {
		return sheetagent.GenerateResult{}, errors.New("gemini: response has no candidates")
	}
	cand := resp.Candidates[0]

	if cand.FinishReason == genai.FinishReasonMalformedFunctionCall {
		detail := string(cand.FinishReason)
		if cand.FinishMessage != "" {
			detail = cand.FinishMessage
		}
		return sheetagent.GenerateResult{}, &sheetagent.MalformedCallError{Detail: detail}
	}

	msg := toAssistantMessage(cand)
	result := sheetagent.GenerateResult{
		Message:      msg,
		StopReason:   stopReason(cand.FinishReason, len(msg.ToolCalls()) > 0),
		FinishDetail: string(cand.FinishReason),
	}
	if len(cand.SafetyRatings) > 0 {
		result.SafetyInfo = formatSafetyRatings(cand.SafetyRatings)
	}
	if resp.UsageMetadata != nil {
		usage := &sheetagent.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
		result.Usage = usage
		result.Message.Usage = usage
	}
	return result, nil
}

func (p *Provider) generateConfig(req sheetagent.GenerateRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if p.cfg.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*p.cfg.Temperature))
	}
	if p.cfg.MaxOutputTokens != nil {
		config.MaxOutputTokens = int32(*p.cfg.MaxOutputTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schemaFromMap(spec.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

func toContents(history []sheetagent.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		switch m := msg.(type) {
		case sheetagent.UserMessage:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: textParts(m.Parts),
			})
		case sheetagent.AssistantMessage:
			var parts []*genai.Part
			for _, part := range m.Parts {
				switch pt := part.(type) {
				case sheetagent.TextPart:
					parts = append(parts, genai.NewPartFromText(pt.Text))
				case sheetagent.ToolCallPart:
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						Name: pt.Name,
						Args: pt.Args,
					}})
				}
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case sheetagent.ToolResultMessage:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(m.Name, m.Payload)},
			})
		}
	}
	return contents
}

func textParts(parts []sheetagent.Part) []*genai.Part {
	var out []*genai.Part
	for _, part := range parts {
		if tp, ok := part.(sheetagent.TextPart); ok {
			out = append(out, genai.NewPartFromText(tp.Text))
		}
	}
	return out
}

// toAssistantMessage converts a candidate back into conversation form.
// Function call IDs are synthesized; Gemini does not issue them.
func toAssistantMessage(cand *genai.Candidate) sheetagent.AssistantMessage {
	msg := sheetagent.AssistantMessage{}
	if cand.Content == nil {
		return msg
	}
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			msg.Parts = append(msg.Parts, sheetagent.TextPart{Text: part.Text})
		}
		if part.FunctionCall != nil {
			callID := part.FunctionCall.ID
			if callID == "" {
				callID = uuid.NewString()
			}
			msg.Parts = append(msg.Parts, sheetagent.ToolCallPart{
				CallID: callID,
				Name:   part.FunctionCall.Name,
				Args:   sheetagent.NormalizeMap(part.FunctionCall.Args),
			})
		}
	}
	return msg
}

func stopReason(reason genai.FinishReason, hasToolCalls bool) sheetagent.StopReason {
	if hasToolCalls {
		return sheetagent.StopToolUse
	}
	switch reason {
	case genai.FinishReasonStop:
		return sheetagent.StopStop
	case genai.FinishReasonMaxTokens:
		return sheetagent.StopLength
	case genai.FinishReasonSafety:
		return sheetagent.StopSafety
	default:
		return sheetagent.StopOther
	}
}

func formatSafetyRatings(ratings []*genai.SafetyRating) string {
	var parts []string
	for _, r := range ratings {
		if r == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", r.Category, r.Probability))
	}
	return strings.Join(parts, ", ")
}

// schemaFromMap converts a JSON-schema map into the API's schema type.
// Unknown keys are ignored.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = schemaType(t)
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = map[string]*genai.Schema{}
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaFromMap(pm)
			}
		}
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, v := range req {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromMap(items)
	}
	if e, ok := m["enum"].([]string); ok {
		s.Enum = e
	}
	return s
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
