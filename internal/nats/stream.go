package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/model"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	fetchBatch = 100
)

// StreamManager is a message log on JetStream. Each message is published on
// conv.<conversation>.msg.<role>; a conversation is read back with an
// ephemeral consumer filtered to its subjects.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationID, role)
}

// ConversationFilter returns the filter subject for all messages in a conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, conversationID)
}

// Append publishes a message and returns its stream sequence.
func (m *StreamManager) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, MessageSubject(msg.ConversationID, msg.Role), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}
	return ack.Sequence, nil
}

// List reads every message of a conversation in stream order.
func (m *StreamManager) List(ctx context.Context, conversationID string) ([]model.Message, error) {
	js := m.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     ConversationFilter(conversationID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	info := consumer.CachedInfo()
	defer func() {
		// expires after InactiveThreshold if this fails
		_ = js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, info.Name)
	}()

	pending := int(info.NumPending)
	messages := make([]model.Message, 0, pending)
	for seen := 0; seen < pending; {
		n := pending - seen
		if n > fetchBatch {
			n = fetchBatch
		}
		batch, err := consumer.Fetch(n, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			seen++
			var message model.Message
			if err := json.Unmarshal(msg.Data(), &message); err != nil {
				m.client.logger.Warn("skipping undecodable message",
					zap.String("conversation_id", conversationID),
					zap.Error(err),
				)
				continue
			}
			if meta, err := msg.Metadata(); err == nil {
				message.Sequence = meta.Sequence.Stream
			}
			messages = append(messages, message)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return messages, nil
}
