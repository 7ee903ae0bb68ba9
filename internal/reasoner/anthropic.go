package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel     = "claude-3-5-haiku-20241022"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

// AnthropicConfig configures the Claude-backed reasoner
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicReasoner implements Reasoner using the Anthropic API
type AnthropicReasoner struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropicReasoner creates a reasoner backed by the Anthropic API.
// With an empty APIKey the SDK reads ANTHROPIC_API_KEY from the environment.
func NewAnthropicReasoner(cfg AnthropicConfig) *AnthropicReasoner {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	var client anthropic.Client
	if cfg.APIKey != "" {
		client = anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	} else {
		client = anthropic.NewClient()
	}

	return &AnthropicReasoner{client: client, config: cfg}
}

// Infer sends the prompt to the model and parses the root-cause JSON.
// Timeouts surface as ErrCollaboratorTimeout so callers take the rule fallback.
func (r *AnthropicReasoner) Infer(ctx context.Context, prompt string) (*domain.RootCause, error) {
	text, err := r.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return ParseRootCause(text)
}

// Complete sends one prompt under the given system instruction and returns
// the model's raw text output.
func (r *AnthropicReasoner) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.config.Model),
		MaxTokens: int64(r.config.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: inference after %s", domain.ErrCollaboratorTimeout, r.config.Timeout)
		}
		return "", fmt.Errorf("%w: inference: %v", domain.ErrCollaboratorFailed, err)
	}

	var textParts []string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			textParts = append(textParts, resp.Content[i].Text)
		}
	}
	return strings.Join(textParts, ""), nil
}
