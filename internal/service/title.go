package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/llm"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
)

const maxTitleWords = 8

const titlePrompt = "Generate a concise title of at most 8 words for a conversation that starts with the message below. " +
	"Reply with the title only, without quotes or trailing punctuation.\n\n"

// TitleGenerator names a conversation after its first user message.
type TitleGenerator struct {
	client llm.Client
	model  string
	logger *logger.Logger
}

// NewTitleGenerator creates a generator. A nil client, or the echo client,
// always uses the word-truncation fallback.
func NewTitleGenerator(client llm.Client, model string, log *logger.Logger) *TitleGenerator {
	return &TitleGenerator{client: client, model: model, logger: logger.OrNop(log)}
}

// Generate returns a title for message. It never fails; model errors fall
// back to the first words of the message.
func (g *TitleGenerator) Generate(ctx context.Context, message string) string {
	if g.client != nil && g.client.Name() != string(llm.ProviderEcho) {
		resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
			Model:       g.model,
			Messages:    []llm.ChatMessage{{Role: "user", Content: titlePrompt + message}},
			MaxTokens:   32,
			Temperature: 0.3,
		})
		if err == nil {
			if title := CleanTitle(resp.Content); title != "" {
				metrics.TitlesGenerated.WithLabelValues("llm").Inc()
				return title
			}
		} else {
			g.logger.Warn("title generation failed", zap.String("provider", g.client.Name()), zap.Error(err))
		}
	}

	metrics.TitlesGenerated.WithLabelValues("fallback").Inc()
	if title := CleanTitle(message); title != "" {
		return title
	}
	return DefaultTitle
}

// CleanTitle trims quotes and punctuation and keeps at most eight words.
func CleanTitle(s string) string {
	words := strings.Fields(s)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	title := strings.Join(words, " ")
	title = strings.Trim(title, "\"'`“”")
	title = strings.TrimRight(title, ".!?:;,")
	return strings.TrimSpace(title)
}
