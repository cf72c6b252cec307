// Package session implements the controller that owns the active
// conversation's message list.
//
// The controller keeps the local list consistent with the remote store:
// sends are applied optimistically before the network call, replies are
// appended when they arrive, and every in-flight call carries a request token
// so completions that arrive after the selection changed are dropped instead
// of being applied to another conversation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
)

var (
	// ErrBusy is returned when a send is attempted while history is loading or
	// another send is in flight.
	ErrBusy = errors.New("session busy")

	// ErrStaleResponse is returned when a completion arrived after the user
	// selected a different conversation; its result was discarded.
	ErrStaleResponse = errors.New("response dropped: conversation no longer selected")

	errNoUser = errors.New("no signed-in user")
)

// State is the controller's position in its state machine.
type State int

const (
	StateNoSession State = iota
	StateLoading
	StateReady
	StateSending
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	default:
		return "no session"
	}
}

// Store is the part of the conversation store the controller talks to.
type Store interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error)
	SendMessageWithFiles(ctx context.Context, req *model.UploadRequest) (*model.SendMessageResponse, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
}

// TitleSink receives refreshed titles. The directory implements it.
type TitleSink interface {
	ApplyTitleUpdate(conversationID, title string) bool
}

// Options configures a Controller.
type Options struct {
	// RefreshTitleAfterUpload also refreshes the title after a successful
	// attachment send. Off by default: only text sends refresh the title.
	RefreshTitleAfterUpload bool

	Logger *logger.Logger
	Now    func() time.Time
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State        State
	Conversation *model.Conversation
	Messages     []model.Message
	Err          error
}

// EmptyState reports whether the loaded conversation has no messages and no
// error, the condition for the empty-state composer layout.
func (s Snapshot) EmptyState() bool {
	return s.State == StateReady && len(s.Messages) == 0 && s.Err == nil
}

// token tags an in-flight call with the selection it was issued for.
type token struct {
	conversationID string
	generation     uint64
}

// Controller is safe for concurrent use. The lock is never held across store
// calls, and listeners run without it.
type Controller struct {
	store  Store
	titles TitleSink
	opts   Options
	logger *logger.Logger
	now    func() time.Time

	mu           sync.Mutex
	sc           model.SessionContext
	state        State
	conversation *model.Conversation
	messages     []model.Message
	err          error
	generation   uint64

	listeners map[int]func(Snapshot)
	nextID    int
}

// New creates a controller with no conversation selected.
func New(store Store, titles TitleSink, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:     store,
		titles:    titles,
		opts:      opts,
		logger:    logger.OrNop(opts.Logger).Named("session"),
		now:       now,
		listeners: make(map[int]func(Snapshot)),
	}
}

// SetContext sets the identity used for store calls.
func (c *Controller) SetContext(sc model.SessionContext) {
	c.mu.Lock()
	c.sc = sc
	c.mu.Unlock()
}

// Subscribe registers fn to receive a snapshot after every change.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a send would be rejected right now.
func (c *Controller) Busy() bool {
	s := c.State()
	return s == StateLoading || s == StateSending
}

// ActiveConversationID returns the selected conversation id, or "".
func (c *Controller) ActiveConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conversation == nil {
		return ""
	}
	return c.conversation.ID
}

// Select points the controller at conv, discarding the previous list and
// anything still in flight for it, and fetches conv's history. The fetched
// list replaces the local one. A failed fetch leaves an empty list and an error.
func (c *Controller) Select(ctx context.Context, conv model.Conversation) error {
	const op apperr.Op = "session.Select"

	c.mu.Lock()
	c.generation++
	c.conversation = &conv
	c.messages = nil
	c.state = StateLoading
	c.err = nil
	tok := c.tokenLocked()
	c.mu.Unlock()
	c.notify()

	msgs, err := c.store.ListMessages(ctx, conv.ID)

	c.mu.Lock()
	if !c.currentLocked(tok) {
		c.mu.Unlock()
		c.dropStale("ListMessages", tok)
		return ErrStaleResponse
	}
	c.state = StateReady
	if err != nil {
		c.messages = []model.Message{}
		c.err = apperr.Fetch(op, err)
	} else {
		c.messages = append(make([]model.Message, 0, len(msgs)), msgs...)
	}
	result := c.err
	c.mu.Unlock()
	c.notify()

	if result != nil {
		c.logger.Warn("history fetch failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return result
}

// Clear returns to the no-session state and invalidates in-flight calls.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.generation++
	c.conversation = nil
	c.messages = nil
	c.state = StateNoSession
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// SendText sends a text message. Blank input or no selected conversation is a
// no-op. The user message is appended before the request is issued; on
// failure it stays in the list and no reply is appended. The conversation
// title is refreshed after the response, whatever its outcome.
func (c *Controller) SendText(ctx context.Context, input string) error {
	const op apperr.Op = "session.SendText"

	if strings.TrimSpace(input) == "" {
		return nil
	}

	tok, userID, err := c.beginSend(op, input)
	if tok == nil {
		return err
	}

	resp, sendErr := c.store.SendMessage(ctx, &model.SendMessageRequest{
		ConversationID: tok.conversationID,
		UserID:         userID,
		Content:        input,
	})
	metrics.RecordSend("text", sendErr)

	result := c.finishSend(op, *tok, resp, sendErr)
	c.refreshTitle(ctx, tok.conversationID, userID)
	return result
}

// SendWithAttachments sends text and files as one message. It needs non-blank
// text or at least one file. The optimistic entry shows the joined file names,
// followed by the text when present.
func (c *Controller) SendWithAttachments(ctx context.Context, input string, files []model.Attachment) error {
	const op apperr.Op = "session.SendWithAttachments"

	if strings.TrimSpace(input) == "" && len(files) == 0 {
		return nil
	}
	files = append([]model.Attachment(nil), files...)

	tok, userID, err := c.beginSend(op, AttachmentLabel(input, files))
	if tok == nil {
		return err
	}

	resp, sendErr := c.store.SendMessageWithFiles(ctx, &model.UploadRequest{
		ConversationID: tok.conversationID,
		UserID:         userID,
		Content:        input,
		Files:          files,
	})
	metrics.RecordSend("files", sendErr)

	result := c.finishSend(op, *tok, resp, sendErr)
	if sendErr == nil && c.opts.RefreshTitleAfterUpload {
		c.refreshTitle(ctx, tok.conversationID, userID)
	}
	return result
}

// AttachmentLabel is the display text of an optimistic attachment message.
func AttachmentLabel(input string, files []model.Attachment) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	label := strings.Join(names, ", ")
	if strings.TrimSpace(input) == "" {
		return label
	}
	if label == "" {
		return input
	}
	return label + "\n" + input
}

// TitleChanged mirrors a directory title change into the cached conversation.
func (c *Controller) TitleChanged(conversationID, title string) {
	c.mu.Lock()
	changed := c.conversation != nil && c.conversation.ID == conversationID && c.conversation.Title != title
	if changed {
		conv := *c.conversation
		conv.Title = title
		c.conversation = &conv
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// ConversationRemoved clears the session when the active conversation is removed.
func (c *Controller) ConversationRemoved(conversationID string) {
	if c.ActiveConversationID() == conversationID {
		c.Clear()
	}
}

// beginSend validates the send, appends the optimistic user message and moves
// to Sending. A nil token means the send must not proceed; the error, if any,
// says why.
func (c *Controller) beginSend(op apperr.Op, display string) (*token, string, error) {
	c.mu.Lock()
	if c.conversation == nil {
		c.mu.Unlock()
		return nil, "", nil
	}
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, "", ErrBusy
	}
	if !c.sc.SignedIn() {
		c.mu.Unlock()
		return nil, "", apperr.Auth(op, errNoUser)
	}

	c.messages = append(c.messages, model.Message{
		ConversationID: c.conversation.ID,
		Role:           model.RoleUser,
		Content:        model.TextContent(display),
		CreatedAt:      c.now(),
	})
	c.state = StateSending
	c.err = nil
	tok := c.tokenLocked()
	userID := c.sc.UserID()
	c.mu.Unlock()
	c.notify()

	return &tok, userID, nil
}

// finishSend applies a send completion if it is still current.
func (c *Controller) finishSend(op apperr.Op, tok token, resp *model.SendMessageResponse, sendErr error) error {
	c.mu.Lock()
	if !c.currentLocked(tok) {
		c.mu.Unlock()
		c.dropStale(string(op), tok)
		if sendErr != nil {
			return apperr.Send(op, sendErr)
		}
		return ErrStaleResponse
	}

	c.state = StateReady
	if sendErr != nil {
		c.err = apperr.Send(op, sendErr)
	} else {
		c.messages = append(c.messages, c.replyMessage(tok.conversationID, resp))
	}
	result := c.err
	c.mu.Unlock()
	c.notify()

	if sendErr != nil {
		c.logger.Warn("send failed",
			zap.String("op", string(op)),
			zap.String("conversation_id", tok.conversationID),
			zap.Error(sendErr),
		)
	}
	return result
}

func (c *Controller) replyMessage(conversationID string, resp *model.SendMessageResponse) model.Message {
	msg := model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		CreatedAt:      c.now(),
	}
	if resp == nil {
		return msg
	}
	msg.Content = resp.Message.Content
	if resp.Message.Role != "" {
		msg.Role = resp.Message.Role
	}
	if ts := resp.Message.CreatedAt; ts != nil && !ts.IsZero() {
		msg.CreatedAt = *ts
	}
	return msg
}

// refreshTitle re-reads the conversation list and pushes conversationID's
// title through the title sink. The title belongs to the conversation, not
// the selection, so it is applied even if the user has moved on.
func (c *Controller) refreshTitle(ctx context.Context, conversationID, userID string) {
	convs, err := c.store.ListConversations(ctx, userID)
	if err != nil {
		c.logger.Warn("title refresh failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	for _, conv := range convs {
		if conv.ID != conversationID {
			continue
		}
		if c.titles != nil {
			c.titles.ApplyTitleUpdate(conversationID, conv.Title)
		}
		// The sink only reports differences from its own copy, which may
		// already hold this title from a reload.
		c.TitleChanged(conversationID, conv.Title)
		return
	}
}

func (c *Controller) dropStale(op string, tok token) {
	metrics.RecordStale(op)
	c.logger.Debug("dropping stale response",
		zap.String("op", op),
		zap.String("conversation_id", tok.conversationID),
		zap.Uint64("generation", tok.generation),
	)
}

func (c *Controller) tokenLocked() token {
	return token{conversationID: c.conversation.ID, generation: c.generation}
}

func (c *Controller) currentLocked(tok token) bool {
	return c.generation == tok.generation && c.conversation != nil && c.conversation.ID == tok.conversationID
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State: c.state,
		Err:   c.err,
	}
	if c.conversation != nil {
		conv := *c.conversation
		s.Conversation = &conv
	}
	if c.messages != nil {
		s.Messages = append(make([]model.Message, 0, len(c.messages)), c.messages...)
	}
	return s
}

func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
