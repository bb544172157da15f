// Package openai implements ports.StreamingCompleter on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
)

// DefaultSystemPrompt frames every completion.
const DefaultSystemPrompt = "You are Wren, an AI game assistant narrating a Shadowrun session " +
	"through a terminal interface. Keep your responses brief, evocative and focused on " +
	"the players' question."

// Config configures the completer.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	Logger       *slog.Logger
}

var _ ports.StreamingCompleter = (*Completer)(nil)

// Completer calls the chat completions endpoint.
type Completer struct {
	client sdk.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Completer. An API key is required.
func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Completer{
		client: sdk.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *Completer) params(prompt string, history []domain.Message) sdk.ChatCompletionNewParams {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, sdk.SystemMessage(c.cfg.SystemPrompt))
	for _, m := range history {
		switch m.Role {
		case domain.MessageAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}
	messages = append(messages, sdk.UserMessage(prompt))

	return sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.cfg.Model),
		Messages:    messages,
		MaxTokens:   sdk.Int(c.cfg.MaxTokens),
		Temperature: sdk.Float(c.cfg.Temperature),
	}
}

// Generate sends the system prompt, the history and the prompt, and returns
// the first choice. Every failure wraps domain.ErrGeneration.
func (c *Completer) Generate(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, c.params(prompt, history))
	if err != nil {
		c.logger.Warn("Completion request failed", "model", c.cfg.Model, "err", err)
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrGeneration)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGeneration)
	}

	c.logger.Debug("Completion received",
		"model", c.cfg.Model,
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.Choices[0].FinishReason,
	)
	return text, nil
}

// GenerateStream is Generate over a streamed response. Content deltas are
// passed to onDelta as they arrive.
func (c *Completer) GenerateStream(ctx context.Context, prompt string, history []domain.Message, onDelta func(delta string) error) (string, error) {
	start := time.Now()
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt, history))
	defer stream.Close()

	acc := sdk.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if onDelta != nil {
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		c.logger.Warn("Streaming completion failed", "model", c.cfg.Model, "err", err)
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if len(acc.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrGeneration)
	}
	text := strings.TrimSpace(acc.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGeneration)
	}

	c.logger.Debug("Streamed completion received",
		"model", c.cfg.Model,
		"duration", time.Since(start),
		"finish_reason", acc.Choices[0].FinishReason,
	)
	return text, nil
}
