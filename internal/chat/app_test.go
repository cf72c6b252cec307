package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/auth"
	"github.com/capitalize-ai/quorra/internal/chat"
	"github.com/capitalize-ai/quorra/internal/directory"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/session"
)

const secret = "test-secret"

// memStore is an in-memory conversation store. Replies echo the input and
// the first user message becomes the title.
type memStore struct {
	mu       sync.Mutex
	clients  []model.Client
	convs    []model.Conversation
	messages map[string][]model.Message
	nextID   int

	failCreate bool
}

func newMemStore() *memStore {
	return &memStore{
		clients: []model.Client{
			{ID: "k1", Name: "Acme", Status: model.StatusActive},
			{ID: "k2", Name: "Globex", Status: model.StatusAtRisk},
		},
		messages: map[string][]model.Message{},
	}
}

func (s *memStore) ListClients(ctx context.Context) ([]model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Client(nil), s.clients...), nil
}

func (s *memStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, c := range s.convs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CreateConversation(ctx context.Context, clientID, userID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errors.New("503 service unavailable")
	}
	s.nextID++
	conv := model.Conversation{
		ID:        fmt.Sprintf("c%d", s.nextID),
		ClientID:  clientID,
		UserID:    userID,
		Title:     "New Chat",
		CreatedAt: time.Now(),
	}
	s.convs = append(s.convs, conv)
	return &conv, nil
}

func (s *memStore) RenameConversation(ctx context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.convs {
		if s.convs[i].ID == conversationID {
			s.convs[i].Title = title
			return nil
		}
	}
	return errors.New("404 not found")
}

func (s *memStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.convs {
		if s.convs[i].ID == conversationID {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			return nil
		}
	}
	return errors.New("404 not found")
}

func (s *memStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message{}, s.messages[conversationID]...), nil
}

func (s *memStore) SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages[req.ConversationID]) == 0 {
		for i := range s.convs {
			if s.convs[i].ID == req.ConversationID {
				s.convs[i].Title = req.Content
			}
		}
	}
	now := time.Now()
	s.messages[req.ConversationID] = append(s.messages[req.ConversationID],
		model.Message{Role: model.RoleUser, Content: model.StructuredContent(req.Content)},
		model.Message{Role: model.RoleAssistant, Content: model.StructuredContent("echo: " + req.Content)},
	)
	return &model.SendMessageResponse{Message: model.Reply{Content: model.TextContent("echo: " + req.Content), CreatedAt: &now}}, nil
}

func (s *memStore) SendMessageWithFiles(ctx context.Context, req *model.UploadRequest) (*model.SendMessageResponse, error) {
	return &model.SendMessageResponse{Message: model.Reply{Content: model.TextContent(fmt.Sprintf("received %d files", len(req.Files)))}}, nil
}

func signedIn(t *testing.T, userID string) *auth.TokenProvider {
	t.Helper()
	p := auth.NewTokenProvider(secret)
	tok, err := auth.Issue(secret, model.User{ID: userID, Email: userID + "@example.com"}, time.Hour)
	require.NoError(t, err)
	_, err = p.SignIn(tok)
	require.NoError(t, err)
	return p
}

func TestApp_StartLoadsDirectory(t *testing.T) {
	t.Parallel()

	s := newMemStore()
	s.convs = []model.Conversation{
		{ID: "x1", ClientID: "k1", UserID: "user-1", Title: "Kickoff"},
		{ID: "x2", ClientID: "k2", UserID: "someone-else", Title: "Hidden"},
	}
	app := chat.New(signedIn(t, "user-1"), s, chat.Options{})
	defer app.Close()

	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, "user-1", app.Context().UserID())

	status, err := app.Directory.Status()
	assert.Equal(t, directory.StatusLoaded, status)
	assert.NoError(t, err)

	visible := app.Directory.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "Acme", visible[0].ClientName)
}

func TestApp_StartSignedOut(t *testing.T) {
	t.Parallel()

	app := chat.New(auth.NewTokenProvider(secret), newMemStore(), chat.Options{DevUserID: "dev"})
	defer app.Close()

	err := app.Start(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.False(t, app.Context().SignedIn())

	status, _ := app.Directory.Status()
	assert.Equal(t, directory.StatusIdle, status)
}

func TestApp_StartDevelopmentPlaceholder(t *testing.T) {
	t.Parallel()

	app := chat.New(auth.NewTokenProvider(secret), newMemStore(), chat.Options{
		DevUserID:   "dev-user",
		Development: true,
	})
	defer app.Close()

	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, "dev-user", app.Context().UserID())
}

func TestApp_NewConversationAndSend(t *testing.T) {
	t.Parallel()

	s := newMemStore()
	app := chat.New(signedIn(t, "user-1"), s, chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))

	conv, err := app.NewConversation(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, app.Directory.SelectedConversation())
	assert.Equal(t, conv.ID, app.Session.ActiveConversationID())
	assert.True(t, app.Session.Snapshot().EmptyState())

	app.Composer.SetText("Quarterly review")
	require.NoError(t, app.Composer.Submit(context.Background()))

	snap := app.Session.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "echo: Quarterly review", snap.Messages[1].Content.String())
	assert.Equal(t, "Quarterly review", snap.Conversation.Title)

	entry, ok := app.Directory.Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Quarterly review", entry.Title)
}

func TestApp_NewConversationErrors(t *testing.T) {
	t.Parallel()

	s := newMemStore()
	s.failCreate = true
	app := chat.New(signedIn(t, "user-1"), s, chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))

	_, err := app.NewConversation(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	_, err = app.NewConversation(context.Background(), "k1")
	assert.True(t, apperr.Is(err, apperr.KindMutation))
	assert.Empty(t, app.Directory.Visible())
	assert.Equal(t, session.StateNoSession, app.Session.State())
}

func TestApp_OpenUnknownConversation(t *testing.T) {
	t.Parallel()

	app := chat.New(signedIn(t, "user-1"), newMemStore(), chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))

	err := app.Open(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

func TestApp_DeleteActiveConversationClearsSession(t *testing.T) {
	t.Parallel()

	app := chat.New(signedIn(t, "user-1"), newMemStore(), chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))

	conv, err := app.NewConversation(context.Background(), "k2")
	require.NoError(t, err)

	require.NoError(t, app.Coordinator.ConfirmDelete(context.Background(), *conv))
	assert.Equal(t, session.StateNoSession, app.Session.State())
	assert.Empty(t, app.Directory.Visible())
}

func TestApp_RenameUpdatesActiveSession(t *testing.T) {
	t.Parallel()

	app := chat.New(signedIn(t, "user-1"), newMemStore(), chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))

	conv, err := app.NewConversation(context.Background(), "k1")
	require.NoError(t, err)

	app.Coordinator.OpenRename(*conv)
	require.NoError(t, app.Coordinator.ConfirmRename(context.Background(), "Renewal plan"))
	assert.Equal(t, "Renewal plan", app.Session.Snapshot().Conversation.Title)
}

func TestApp_SignOutResets(t *testing.T) {
	t.Parallel()

	app := chat.New(signedIn(t, "user-1"), newMemStore(), chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))
	_, err := app.NewConversation(context.Background(), "k1")
	require.NoError(t, err)

	require.NoError(t, app.SignOut(context.Background()))

	assert.False(t, app.Context().SignedIn())
	assert.Equal(t, session.StateNoSession, app.Session.State())
	assert.Empty(t, app.Directory.Visible())
	status, _ := app.Directory.Status()
	assert.Equal(t, directory.StatusIdle, status)

	assert.True(t, apperr.Is(app.Reload(context.Background()), apperr.KindAuth))
}

func TestApp_ProviderSignOutResets(t *testing.T) {
	t.Parallel()

	provider := signedIn(t, "user-1")
	app := chat.New(provider, newMemStore(), chat.Options{})
	defer app.Close()
	require.NoError(t, app.Start(context.Background()))
	_, err := app.NewConversation(context.Background(), "k1")
	require.NoError(t, err)

	require.NoError(t, provider.SignOut(context.Background()))
	assert.False(t, app.Context().SignedIn())
	assert.Equal(t, session.StateNoSession, app.Session.State())
}
