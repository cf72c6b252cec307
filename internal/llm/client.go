// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"strings"
)

const defaultMaxTokens = 1024

// ErrEmptyCompletion is returned when a provider answered without any text.
var ErrEmptyCompletion = errors.New("llm: provider returned no content")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

func (r *CompletionRequest) modelOr(fallback string) string {
	if r.Model != "" {
		return r.Model
	}
	return fallback
}

func (r *CompletionRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models. The first is the default.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderEcho      Provider = "echo"
)

// Keys holds the API keys of the hosted providers.
type Keys struct {
	Anthropic string
	OpenAI    string
}

// NewClient picks a provider. The preferred one is used when its key is set,
// then any provider with a key, then the offline echo responder.
func NewClient(preferred Provider, keys Keys) (Client, error) {
	switch {
	case preferred == ProviderOpenAI && keys.OpenAI != "":
		return NewOpenAIClient(keys.OpenAI)
	case preferred != ProviderEcho && keys.Anthropic != "":
		return NewAnthropicClient(keys.Anthropic)
	case preferred != ProviderEcho && keys.OpenAI != "":
		return NewOpenAIClient(keys.OpenAI)
	default:
		return NewEchoClient(), nil
	}
}

// SplitSystem separates system turns from the conversation. Providers that
// take the system prompt out of band use it.
func SplitSystem(msgs []ChatMessage) (system string, rest []ChatMessage) {
	var parts []string
	for _, m := range msgs {
		if m.Role == "system" {
			parts = append(parts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}
