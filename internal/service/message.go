package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/llm"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
)

const (
	systemPrompt = "You are an assistant helping an account team with one of their client organizations. " +
		"Answer concisely and use any attached documents as context."

	// historyWindow bounds the turns sent to the model.
	historyWindow = 50

	// maxDocumentChars bounds the text of one document in the prompt.
	maxDocumentChars = 20000

	// summaryEvery is how many stored messages each summary section covers.
	summaryEvery = 16

	summaryPrompt = "Summarize this conversation for future context. " +
		"Cover what was discussed, key client details and open questions. Keep it factual and neutral.\n\n"
)

// MessageService handles message operations.
type MessageService struct {
	log           MessageLog
	conversations *ConversationService
	llmClient     llm.Client
	titles        *TitleGenerator
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(
	log MessageLog,
	conversations *ConversationService,
	llmClient llm.Client,
	titles *TitleGenerator,
	logr *logger.Logger,
) *MessageService {
	return &MessageService{
		log:           log,
		conversations: conversations,
		llmClient:     llmClient,
		titles:        titles,
		logger:        logger.OrNop(logr),
	}
}

// List returns a conversation's messages in log order.
func (s *MessageService) List(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.log.List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// Send stores the user message, asks the model for a reply and stores it.
// The first user message of a conversation also names the conversation.
func (s *MessageService) Send(ctx context.Context, req *model.SendMessageRequest) (*model.Reply, error) {
	return s.exchange(ctx, req.UserID, req.ConversationID, req.Content)
}

// SendWithFiles stores the uploaded files as conversation documents, then
// proceeds like Send. Without text the stored user message lists the files.
func (s *MessageService) SendWithFiles(ctx context.Context, req *model.UploadRequest) (*model.Reply, error) {
	docs := make([]model.Document, len(req.Files))
	names := make([]string, len(req.Files))
	now := time.Now().UTC()
	for i, f := range req.Files {
		docs[i] = ExtractDocument(f, now)
		names[i] = f.Name
	}
	if err := s.conversations.AddDocuments(ctx, req.UserID, req.ConversationID, docs); err != nil {
		return nil, err
	}

	content := req.Content
	if strings.TrimSpace(content) == "" {
		content = "Uploaded files: " + strings.Join(names, ", ")
	}
	return s.exchange(ctx, req.UserID, req.ConversationID, content)
}

func (s *MessageService) exchange(ctx context.Context, userID, conversationID, content string) (*model.Reply, error) {
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	history, err := s.log.List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	first := true
	for _, m := range history {
		if m.Role == model.RoleUser {
			first = false
			break
		}
	}

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           model.RoleUser,
		Content:        model.StructuredContent(content),
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.log.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	prompt := s.buildPrompt(ctx, conversationID, append(history, *userMsg))
	resp, err := s.complete(ctx, prompt, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	assistantMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        model.StructuredContent(resp.Content),
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.log.Append(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	s.maybeSummarize(ctx, conversationID, append(history, *userMsg, *assistantMsg))

	if first && s.titles != nil {
		title := s.titles.Generate(ctx, content)
		if err := s.conversations.Rename(ctx, userID, conversationID, title); err != nil {
			s.logger.Warn("failed to store generated title",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}

	created := assistantMsg.CreatedAt
	return &model.Reply{
		Role:      model.RoleAssistant,
		Content:   model.TextContent(resp.Content),
		CreatedAt: &created,
	}, nil
}

func (s *MessageService) complete(ctx context.Context, prompt []llm.ChatMessage, temperature float64) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Messages:    prompt,
		Temperature: temperature,
	})
	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordLLM(s.llmClient.Name(), "unknown", status, time.Since(start).Seconds(), 0, 0)
		s.logger.Error("completion failed", zap.String("provider", s.llmClient.Name()), zap.Error(err))
		return nil, err
	}
	metrics.RecordLLM(s.llmClient.Name(), resp.Model, status, time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}

// buildPrompt assembles the system prompt, document context, client
// context, running summary and the most recent turns.
func (s *MessageService) buildPrompt(ctx context.Context, conversationID string, history []model.Message) []llm.ChatMessage {
	system := systemPrompt
	if docs := s.conversations.Documents(ctx, conversationID); len(docs) > 0 {
		system += "\n\n" + DocumentContext(docs)
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	prompt := make([]llm.ChatMessage, 0, len(history)+3)
	prompt = append(prompt, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	if client, ok := s.conversations.Client(ctx, conversationID); ok {
		prompt = append(prompt, llm.ChatMessage{Role: string(model.RoleSystem), Content: ClientContext(client)})
	}
	if summary := s.conversations.Summary(ctx, conversationID); summary != "" {
		prompt = append(prompt, llm.ChatMessage{
			Role:    string(model.RoleSystem),
			Content: "Summary of previous conversation:\n" + summary,
		})
	}
	for _, m := range history {
		if m.Role == model.RoleSystem {
			continue
		}
		prompt = append(prompt, llm.ChatMessage{Role: string(m.Role), Content: m.Content.String()})
	}
	return prompt
}

// maybeSummarize extends the running summary each time the log reaches a
// multiple of summaryEvery messages. Failures are logged and dropped.
func (s *MessageService) maybeSummarize(ctx context.Context, conversationID string, msgs []model.Message) {
	total := len(msgs)
	if total < summaryEvery || total%summaryEvery != 0 {
		return
	}
	if s.llmClient.Name() == string(llm.ProviderEcho) {
		return
	}

	var b strings.Builder
	b.WriteString(summaryPrompt)
	if old := s.conversations.Summary(ctx, conversationID); old != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(old)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent messages:")
	for _, m := range msgs[total-summaryEvery:] {
		fmt.Fprintf(&b, "\n%s: %s", m.Role, m.Content.String())
	}

	resp, err := s.complete(ctx, []llm.ChatMessage{{Role: string(model.RoleUser), Content: b.String()}}, 0.3)
	if err != nil {
		s.logger.Warn("failed to update summary", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	section := strings.TrimSpace(resp.Content)
	if section == "" {
		return
	}
	s.conversations.AppendSummary(ctx, conversationID, section)
	s.logger.Debug("summary updated", zap.String("conversation_id", conversationID), zap.Int("messages", total))
}

// ClientContext renders the conversation's client for the system prompt.
func ClientContext(c model.Client) string {
	return fmt.Sprintf("Primary client of this conversation:\n- Name: %s\n- Status: %s", c.Name, c.Status)
}

// ExtractDocument converts an upload into a document. Text is kept only for
// text-like files.
func ExtractDocument(a model.Attachment, now time.Time) model.Document {
	contentType := a.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(a.Data)
	}
	doc := model.Document{
		Name:        a.Name,
		ContentType: contentType,
		Size:        int64(len(a.Data)),
		UploadedAt:  now,
	}
	if isText(contentType) && utf8.Valid(a.Data) {
		doc.Text = string(a.Data)
	}
	return doc
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "application/xml") ||
		strings.HasPrefix(contentType, "application/x-yaml")
}

// DocumentContext renders documents for the system prompt.
func DocumentContext(docs []model.Document) string {
	var b strings.Builder
	b.WriteString("Attached documents:")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n\n--- %s (%s) ---\n", d.Name, d.ContentType)
		text := d.Text
		if text == "" {
			fmt.Fprintf(&b, "[binary file, %d KB, content not available]", (d.Size+512)/1024)
			continue
		}
		if len(text) > maxDocumentChars {
			text = text[:maxDocumentChars] + "\n[truncated]"
		}
		b.WriteString(text)
	}
	return b.String()
}
