// Package composer holds the draft text and pending attachments for the next
// message and hands them to the session on submit.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/capitalize-ai/quorra/internal/model"
)

// ErrNothingToSend is returned by Submit when there is no text and no file.
var ErrNothingToSend = errors.New("nothing to send")

// ErrBusy is returned by Submit while the sender cannot accept a message.
var ErrBusy = errors.New("composer: session busy")

// Sender is the part of the session controller the composer submits to.
type Sender interface {
	SendText(ctx context.Context, input string) error
	SendWithAttachments(ctx context.Context, input string, files []model.Attachment) error
	Busy() bool
}

// Composer is the input box of a session: draft text plus pending files.
// It is safe for concurrent use.
type Composer struct {
	sender Sender

	mu    sync.Mutex
	text  string
	files []model.Attachment
}

// New creates an empty composer that submits to sender.
func New(sender Sender) *Composer {
	return &Composer{sender: sender}
}

// SetText replaces the draft text.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Text returns the draft text.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// AddFiles appends to the pending list.
func (c *Composer) AddFiles(files ...model.Attachment) {
	c.mu.Lock()
	c.files = append(c.files, files...)
	c.mu.Unlock()
}

// AttachPath reads a file from disk and adds it.
func (c *Composer) AttachPath(path string) (model.Attachment, error) {
	a, err := model.LoadAttachment(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	c.AddFiles(a)
	return a, nil
}

// RemoveFile drops the file at index i; the rest keep their order.
func (c *Composer) RemoveFile(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.files) {
		return fmt.Errorf("no attachment at index %d", i)
	}
	c.files = append(c.files[:i:i], c.files[i+1:]...)
	return nil
}

// Files returns a copy of the pending attachments in the order added.
func (c *Composer) Files() []model.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Attachment(nil), c.files...)
}

// Submit sends the draft. With files it goes through SendWithAttachments,
// otherwise through SendText. The draft is cleared as soon as the submission
// is accepted; the sender works on a copy, so the returned error only reports
// the outcome of that send. A busy sender rejects the draft and leaves it in
// place.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	text := c.text
	files := append([]model.Attachment(nil), c.files...)
	if strings.TrimSpace(text) == "" && len(files) == 0 {
		c.mu.Unlock()
		return ErrNothingToSend
	}
	if c.sender.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.text = ""
	c.files = nil
	c.mu.Unlock()

	if len(files) > 0 {
		return c.sender.SendWithAttachments(ctx, text, files)
	}
	return c.sender.SendText(ctx, text)
}
