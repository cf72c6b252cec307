package service

import (
	"context"
	"sync"

	"github.com/capitalize-ai/quorra/internal/model"
)

// MessageLog is the append-only store of conversation messages.
// nats.StreamManager implements it on JetStream.
type MessageLog interface {
	Append(ctx context.Context, msg *model.Message) (uint64, error)
	List(ctx context.Context, conversationID string) ([]model.Message, error)
}

// MemoryLog keeps messages in process memory.
type MemoryLog struct {
	mu       sync.RWMutex
	seq      uint64
	messages map[string][]model.Message
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{messages: make(map[string][]model.Message)}
}

// Append stores a copy of msg and returns its sequence number.
func (l *MemoryLog) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	m := *msg
	m.Sequence = l.seq
	l.messages[m.ConversationID] = append(l.messages[m.ConversationID], m)
	return l.seq, nil
}

// List returns a conversation's messages in append order.
func (l *MemoryLog) List(ctx context.Context, conversationID string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Message{}, l.messages[conversationID]...), nil
}
