package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/upstream"
)

// Generator produces prompt text via chat completion, retried through the
// upstream orchestrator.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *zap.Logger
}

// NewGenerator creates a chat-completion generation client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
}

// Generate runs one chat completion and returns the raw assistant text.
// Transient API failures are retried per the default policy.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var text string
	resp, err := upstream.Do(ctx, "generation", upstream.DefaultPolicy, g.logger, func(ctx context.Context) (*upstream.Response, error) {
		completion, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if status, body := apiStatus(err); status > 0 {
				return &upstream.Response{StatusCode: status, Body: body}, nil
			}
			return nil, err
		}
		if len(completion.Choices) == 0 {
			return &upstream.Response{StatusCode: http.StatusBadGateway, Body: []byte("empty completion")}, nil
		}
		text = completion.Choices[0].Message.Content
		return &upstream.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		return "", fmt.Errorf("generation: %w", err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("generation API error %d: %s: %w",
			resp.StatusCode, resp.Body, domain.ErrUpstreamPermanent)
	}
	return text, nil
}

// apiStatus pulls the HTTP status out of a go-openai error, 0 when absent.
func apiStatus(err error) (int, []byte) {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Body
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, []byte(apiErr.Message)
	}
	return 0, nil
}
