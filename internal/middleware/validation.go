package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxContentBytes = 100000
	maxTitleLength  = 256
	maxIDLength     = 64

	// MaxUploadFiles and MaxUploadBytes bound a with-files message.
	MaxUploadFiles = 10
	MaxUploadBytes = 20 << 20
)

// ValidateMessageContent validates message content. Empty content is allowed
// only when files accompany the message.
func ValidateMessageContent(content string, withFiles bool) error {
	if strings.TrimSpace(content) == "" && !withFiles {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateID validates a client or user id.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(kind + " cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New(kind + " exceeds maximum length")
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
