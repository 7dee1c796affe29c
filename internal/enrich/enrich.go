// Package enrich expands free-text search queries with related terms via
// an OpenAI-compatible completion endpoint. It is strictly best-effort:
// every failure path returns the original query untouched.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultModel   = openai.GPT4oMini
	defaultTimeout = 2 * time.Second
	maxExpansion   = 256
)

const systemPrompt = `You expand marketplace search queries. Given a user query,
return the query followed by up to five closely related search terms,
space-separated, same language as the query. Return only the terms.`

// Config holds expander settings.
type Config struct {
	APIKey  string
	BaseURL string        // "" = api.openai.com
	Model   string        // "" = gpt-4o-mini
	Timeout time.Duration // 0 = 2s
}

// Expander rewrites queries through a chat completion call.
type Expander struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an expander. Returns an error when no API key is set, so
// the caller can wire the engine without expansion instead.
func New(cfg Config, logger *zap.Logger) (*Expander, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Expander{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Expand returns an expanded query, or an error the caller must treat as
// "use the original query".
func (e *Expander) Expand(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.2,
		MaxTokens:   64,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("expansion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("expansion returned no choices")
	}

	expanded := strings.TrimSpace(resp.Choices[0].Message.Content)
	if expanded == "" || len(expanded) > maxExpansion {
		return "", fmt.Errorf("expansion unusable (len %d)", len(expanded))
	}

	e.logger.Debug("query expanded",
		zap.String("original", query),
		zap.String("expanded", expanded),
	)
	return expanded, nil
}
