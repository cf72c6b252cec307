package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// openAIModels lists the chat models offered; the first is the default.
var openAIModels = []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo"}

// OpenAIClient answers through the chat completions API.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient creates a client for the OpenAI API.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	return &OpenAIClient{api: openai.NewClient(apiKey)}, nil
}

func (c *OpenAIClient) Name() string { return string(ProviderOpenAI) }

func (c *OpenAIClient) Models() []string { return openAIModels }

// Complete sends the whole prompt, system turns included, in one request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	turns := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.modelOr(openAIModels[0]),
		Messages:    turns,
		MaxTokens:   req.maxTokens(),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:    choice.Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: string(choice.FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
