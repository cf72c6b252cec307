// Package service provides the business logic of the reference conversation store.
package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
)

// DefaultTitle is the title of a conversation before its first message.
const DefaultTitle = "New Chat"

const summarySeparator = "\n\n---\n\n"

var (
	// ErrNotFound is returned for unknown, deleted or foreign conversations.
	ErrNotFound = errors.New("conversation not found")
	// ErrUnknownClient is returned when creating a conversation for an unknown client.
	ErrUnknownClient = errors.New("unknown client")
)

// ConversationService handles conversation operations.
type ConversationService struct {
	clients *ClientService
	logger  *logger.Logger

	// In-memory storage; messages live in the MessageLog.
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	documents     map[string][]model.Document
	summaries     map[string]string
}

// NewConversationService creates a new conversation service.
func NewConversationService(clients *ClientService, log *logger.Logger) *ConversationService {
	return &ConversationService{
		clients:       clients,
		logger:        logger.OrNop(log),
		conversations: make(map[string]*model.Conversation),
		documents:     make(map[string][]model.Document),
		summaries:     make(map[string]string),
	}
}

// Create creates a new conversation for a user and client.
func (s *ConversationService) Create(ctx context.Context, clientID, userID string) (*model.Conversation, error) {
	if s.clients != nil && !s.clients.Exists(clientID) {
		return nil, ErrUnknownClient
	}

	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ClientID:  clientID,
		UserID:    userID,
		Title:     DefaultTitle,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	metrics.ConversationsTotal.WithLabelValues(clientID).Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("client_id", clientID),
		zap.String("user_id", userID),
	)

	c := *conv
	return &c, nil
}

// Get retrieves a conversation owned by userID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.ownedLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}
	c := *conv
	return &c, nil
}

// ListByUser returns a user's conversations, oldest first.
func (s *ConversationService) ListByUser(ctx context.Context, userID string) []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := []model.Conversation{}
	for _, conv := range s.conversations {
		if conv.UserID == userID && !conv.Deleted {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs
}

// Rename sets a conversation's title.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.ownedLocked(userID, conversationID)
	if err != nil {
		return err
	}
	conv.Title = title
	return nil
}

// Delete soft deletes a conversation.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.ownedLocked(userID, conversationID)
	if err != nil {
		return err
	}
	conv.Deleted = true
	delete(s.documents, conversationID)
	return nil
}

// AddDocuments attaches uploaded files to a conversation.
func (s *ConversationService) AddDocuments(ctx context.Context, userID, conversationID string, docs []model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedLocked(userID, conversationID); err != nil {
		return err
	}
	s.documents[conversationID] = append(s.documents[conversationID], docs...)
	metrics.AttachmentsTotal.Add(float64(len(docs)))
	return nil
}

// Documents returns the files uploaded into a conversation.
func (s *ConversationService) Documents(ctx context.Context, conversationID string) []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Document(nil), s.documents[conversationID]...)
}

// Client returns the client a conversation is scoped to. It reports false
// when the conversation or its client is unknown.
func (s *ConversationService) Client(ctx context.Context, conversationID string) (model.Client, bool) {
	s.mu.RLock()
	conv, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok || s.clients == nil {
		return model.Client{}, false
	}
	return s.clients.Get(conv.ClientID)
}

// Summary returns the running summary of a conversation, empty before the
// first one is written.
func (s *ConversationService) Summary(ctx context.Context, conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[conversationID]
}

// AppendSummary adds a section to the running summary. Earlier sections are kept.
func (s *ConversationService) AppendSummary(ctx context.Context, conversationID, section string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.summaries[conversationID]; old != "" {
		section = old + summarySeparator + section
	}
	s.summaries[conversationID] = section
}

func (s *ConversationService) ownedLocked(userID, conversationID string) (*model.Conversation, error) {
	conv, ok := s.conversations[conversationID]
	if !ok || conv.Deleted || conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}
