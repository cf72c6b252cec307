package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicModels lists the models offered; the first is the default.
var anthropicModels = []string{
	"claude-3-5-haiku-20241022",
	"claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229",
}

// AnthropicClient answers through the Messages API.
type AnthropicClient struct {
	api *anthropic.Client
}

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	return &AnthropicClient{api: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (c *AnthropicClient) Name() string { return string(ProviderAnthropic) }

func (c *AnthropicClient) Models() []string { return anthropicModels }

// Complete sends the prompt. Messages only carry user and assistant turns, so
// the system prompt is prepended to the first user turn.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	system, turns := SplitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, errors.New("anthropic: no user or assistant messages")
	}
	if system != "" && turns[0].Role == "user" {
		turns[0].Content = system + "\n\n" + turns[0].Content
	}

	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		params = append(params, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(m.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(m.Content),
				},
			}),
		})
	}

	resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(req.modelOr(anthropicModels[0])),
		MaxTokens: anthropic.F(int64(req.maxTokens())),
		Messages:  anthropic.F(params),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyCompletion
	}

	return &CompletionResponse{
		Content:    text.String(),
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
