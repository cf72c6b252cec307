package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Content is a message body as delivered by the store. It is either a plain
// string or a structured payload carrying text and raw_text. The raw form is
// preserved; String normalizes it for display.
type Content struct {
	Text       string `json:"text,omitempty"`
	RawText    string `json:"raw_text,omitempty"`
	Structured bool   `json:"-"`
}

// TextContent returns plain string content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// StructuredContent returns content in the store's {"text": ...} shape.
func StructuredContent(s string) Content {
	return Content{Text: s, Structured: true}
}

// String returns the display text: text when present, raw_text otherwise.
func (c Content) String() string {
	if c.Text != "" {
		return c.Text
	}
	return c.RawText
}

// MarshalJSON encodes plain content as a JSON string and structured content as an object.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.Structured {
		return json.Marshal(c.Text)
	}
	type payload Content
	return json.Marshal(payload(c))
}

// UnmarshalJSON accepts either a JSON string or a {text, raw_text} object.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	}
	type payload Content
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode message content: %w", err)
	}
	*c = Content(p)
	c.Structured = true
	return nil
}

// Message represents a conversation message.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Role           Role      `json:"role"`
	Content        Content   `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Sequence is the position in the backend message log (populated on read).
	Sequence uint64 `json:"sequence,omitempty"`
}

// SendMessageRequest is the request to send a new text message.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content"`
}

// UploadRequest is a message send that carries file attachments.
type UploadRequest struct {
	ConversationID string
	UserID         string
	Content        string
	Files          []Attachment
}

// Reply is the assistant message returned from a send.
type Reply struct {
	Role      Role       `json:"role,omitempty"`
	Content   Content    `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	Status  string `json:"status,omitempty"`
	Message Reply  `json:"message"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Total    int       `json:"total,omitempty"`
	Messages []Message `json:"messages"`
}

// Attachment is a file held by the composer until the message is submitted.
type Attachment struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// LoadAttachment reads a file from disk into an Attachment.
func LoadAttachment(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return Attachment{
		Name: filepath.Base(path),
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// SizeKB returns the attachment size in KiB, rounded to the nearest integer.
func (a Attachment) SizeKB() int64 {
	return int64(math.Round(float64(a.Size) / 1024))
}
