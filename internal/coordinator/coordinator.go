// Package coordinator runs the rename and delete flows for conversations.
// Local state changes only after the backend confirms.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

var (
	// ErrNoRename is returned by ConfirmRename when no rename is open.
	ErrNoRename = errors.New("no rename in progress")
	// ErrEmptyTitle is returned for a blank title; nothing is sent.
	ErrEmptyTitle = errors.New("title must not be empty")
)

// Store is the mutation half of the conversation store.
type Store interface {
	RenameConversation(ctx context.Context, conversationID, title string) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Directory receives confirmed changes.
type Directory interface {
	ApplyTitleUpdate(conversationID, title string) bool
	RemoveConversation(conversationID string) bool
}

// Modal is the state of the rename dialog.
type Modal struct {
	Open         bool
	Conversation model.Conversation
	Draft        string
	Err          error
}

// Coordinator runs rename and delete for the conversation list. It is safe
// for concurrent use and never holds its lock across store calls.
type Coordinator struct {
	store  Store
	dir    Directory
	logger *logger.Logger

	mu    sync.Mutex
	modal Modal
}

// New creates a coordinator with the rename dialog closed.
func New(store Store, dir Directory, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		dir:    dir,
		logger: logger.OrNop(log).Named("coordinator"),
	}
}

// OpenRename opens the dialog pre-filled with the current title.
func (c *Coordinator) OpenRename(conv model.Conversation) {
	c.mu.Lock()
	c.modal = Modal{Open: true, Conversation: conv, Draft: conv.Title}
	c.mu.Unlock()
}

// SetDraft replaces the title being edited.
func (c *Coordinator) SetDraft(title string) {
	c.mu.Lock()
	c.modal.Draft = title
	c.mu.Unlock()
}

// Cancel closes the dialog without changes.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.modal = Modal{}
	c.mu.Unlock()
}

// Modal returns a copy of the dialog state.
func (c *Coordinator) Modal() Modal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modal
}

// ConfirmRename renames the conversation in the open dialog. An empty title
// argument uses the current draft. On failure the dialog stays open with the
// error and the old title is kept everywhere.
func (c *Coordinator) ConfirmRename(ctx context.Context, title string) error {
	const op apperr.Op = "coordinator.ConfirmRename"

	c.mu.Lock()
	if !c.modal.Open {
		c.mu.Unlock()
		return ErrNoRename
	}
	if title == "" {
		title = c.modal.Draft
	}
	title = strings.TrimSpace(title)
	if title == "" {
		c.modal.Err = apperr.E(op, apperr.KindInvalid, ErrEmptyTitle)
		c.mu.Unlock()
		return ErrEmptyTitle
	}
	c.modal.Draft = title
	c.modal.Err = nil
	conv := c.modal.Conversation
	c.mu.Unlock()

	if err := c.store.RenameConversation(ctx, conv.ID, title); err != nil {
		err = apperr.Mutation(op, err)
		c.mu.Lock()
		if c.modal.Open && c.modal.Conversation.ID == conv.ID {
			c.modal.Err = err
		}
		c.mu.Unlock()
		c.logger.Warn("rename failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return err
	}

	c.dir.ApplyTitleUpdate(conv.ID, title)

	c.mu.Lock()
	if c.modal.Conversation.ID == conv.ID {
		c.modal = Modal{}
	}
	c.mu.Unlock()
	return nil
}

// ConfirmDelete deletes conv and removes it from the directory, which in turn
// clears the session if conv was active.
func (c *Coordinator) ConfirmDelete(ctx context.Context, conv model.Conversation) error {
	const op apperr.Op = "coordinator.ConfirmDelete"

	if err := c.store.DeleteConversation(ctx, conv.ID); err != nil {
		c.logger.Warn("delete failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return apperr.Mutation(op, err)
	}
	c.dir.RemoveConversation(conv.ID)

	c.mu.Lock()
	if c.modal.Conversation.ID == conv.ID {
		c.modal = Modal{}
	}
	c.mu.Unlock()
	return nil
}
