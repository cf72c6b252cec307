// Package store is the HTTP client for the remote conversation store.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
	"github.com/capitalize-ai/quorra/pkg/tracing"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// StatusError is a non-2xx response from the store.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("store returned %d: %s", e.Code, e.Message)
}

// Client talks to the conversation store REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tokens     TokenSource
	logger     *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource attaches bearer tokens to requests.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

const defaultTimeout = 2 * time.Minute

// New creates a store client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.NewNop(),
		tracer:     tracing.Tracer("quorra/store"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// ListClients handles GET /clients.
func (c *Client) ListClients(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	if err := c.do(ctx, "ListClients", http.MethodGet, "/clients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListConversations handles GET /conversations/{userId}.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	var out model.ListConversationsResponse
	if err := c.do(ctx, "ListConversations", http.MethodGet, "/conversations/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// CreateConversation handles POST /conversations.
func (c *Client) CreateConversation(ctx context.Context, clientID, userID string) (*model.Conversation, error) {
	req := &model.CreateConversationRequest{ClientID: clientID, UserID: userID}
	var out model.CreateConversationResponse
	if err := c.do(ctx, "CreateConversation", http.MethodPost, "/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

// RenameConversation handles PATCH /conversations/{id}/title.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) error {
	req := &model.RenameConversationRequest{Title: title}
	return c.do(ctx, "RenameConversation", http.MethodPatch, "/conversations/"+url.PathEscape(conversationID)+"/title", req, nil)
}

// DeleteConversation handles DELETE /conversations/{id}.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, "DeleteConversation", http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil)
}

// ListMessages handles GET /messages/{conversationId}.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out model.ListMessagesResponse
	if err := c.do(ctx, "ListMessages", http.MethodGet, "/messages/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []model.Message{}
	}
	return out.Messages, nil
}

// SendMessage handles POST /messages.
func (c *Client) SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	var out model.SendMessageResponse
	if err := c.do(ctx, "SendMessage", http.MethodPost, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessageWithFiles handles POST /messages/with-files as multipart form data.
func (c *Client) SendMessageWithFiles(ctx context.Context, req *model.UploadRequest) (*model.SendMessageResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"conversation_id", req.ConversationID},
		{"user_id", req.UserID},
		{"content", req.Content},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	for _, file := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("failed to write file part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	var out model.SendMessageResponse
	if err := c.send(ctx, "SendMessageWithFiles", http.MethodPost, "/messages/with-files", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.send(ctx, op, method, path, reader, contentType, out)
}

func (c *Client) send(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	start := time.Now()
	defer func() {
		metrics.RecordStoreCall(op, err, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("store call failed",
				zap.String("op", op),
				zap.String("path", path),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %w", op, decodeError(resp))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Detail != "":
			msg = body.Detail
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
