package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/pkg/config"
)

// Provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
)

// Completer produces a chat completion for a system and user message.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// UpstreamError is returned when the provider answers with a non-200 status.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error: %d", e.Provider, e.Status)
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
// Perplexity speaks the same protocol under its own base URL.
type ChatClient struct {
	name        string
	model       string
	temperature float32
	maxTokens   int
	api         *openai.Client
}

// NewChatClient builds a client for one provider. A missing API key is a configuration error.
func NewChatClient(name string, cfg config.AIProviderConfig, ai config.AIConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.NewConfigError(fmt.Sprintf("ai.%s.api_key", name))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy url: %w", name, err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	timeout := ai.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout, Transport: transport}

	return &ChatClient{
		name:        name,
		model:       cfg.Model,
		temperature: float32(ai.Temperature),
		maxTokens:   ai.MaxTokens,
		api:         openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Complete sends one request. It never retries.
func (c *ChatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", c.upstream(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s returned no choices", c.name)
	}

	return resp.Choices[0].Message.Content, nil
}

// upstream maps HTTP failures reported by the SDK to UpstreamError; transport
// errors are wrapped unchanged.
func (c *ChatClient) upstream(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &UpstreamError{Provider: c.name, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &UpstreamError{Provider: c.name, Status: reqErr.HTTPStatusCode, Body: body}
	}

	return fmt.Errorf("%s request: %w", c.name, err)
}
