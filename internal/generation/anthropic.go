package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mentorchat/backend/pkg/config"
)

// jsonInstruction is appended to the system prompt because the Messages API
// has no JSON response mode.
const jsonInstruction = "\n\n반드시 코드 블록 없이 하나의 JSON 객체만 출력하라."

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client      *anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

// NewAnthropicGenerator builds a generator for the given model
func NewAnthropicGenerator(cfg *config.Config, model string) *AnthropicGenerator {
	var opts []option.RequestOption
	if cfg.Generation.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.Generation.APIKey))
	}
	if cfg.Generation.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Generation.BaseURL))
	}
	if model == "" {
		model = cfg.Generation.Model
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicGenerator{
		client:      &client,
		model:       anthropic.Model(model),
		temperature: cfg.Generation.Temperature,
		maxTokens:   int64(cfg.Generation.MaxTokens),
	}
}

// Generate implements Generator
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
	}
	system := req.System
	if req.JSON {
		system += jsonInstruction
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", wrap("anthropic", status, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &Error{Kind: KindMalformed, Provider: "anthropic", Err: errors.New("no text content")}
	}
	return text, nil
}
