package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EchoClient answers without a hosted model. It is used when no API key is
// configured so the store can run offline.
type EchoClient struct{}

// NewEchoClient creates the offline responder.
func NewEchoClient() *EchoClient { return &EchoClient{} }

func (c *EchoClient) Name() string { return string(ProviderEcho) }

func (c *EchoClient) Models() []string { return []string{"echo"} }

// Complete replies to the last user turn.
func (c *EchoClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}

	content := fmt.Sprintf("You said: %s", strings.TrimSpace(last))
	return &CompletionResponse{
		Content:    content,
		Model:      "echo",
		TokensIn:   len(strings.Fields(last)),
		TokensOut:  len(strings.Fields(content)),
		StopReason: "end_turn",
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
