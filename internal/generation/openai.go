package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"mentorchat/backend/pkg/config"
)

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGenerator builds a generator for the given model. A non-empty
// BaseURL points the client at a compatible gateway.
func NewOpenAIGenerator(cfg *config.Config, model string) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.Generation.APIKey)
	if cfg.Generation.BaseURL != "" {
		clientCfg.BaseURL = cfg.Generation.BaseURL
	}
	if model == "" {
		model = cfg.Generation.Model
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: float32(cfg.Generation.Temperature),
		maxTokens:   cfg.Generation.MaxTokens,
	}
}

// Generate implements Generator
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	params := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	if req.JSON {
		params.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := g.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return "", wrap("openai", openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindMalformed, Provider: "openai", Err: errors.New("no choices")}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindMalformed, Provider: "openai", Err: errors.New("empty content")}
	}
	return text, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
