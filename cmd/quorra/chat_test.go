package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/auth"
	"github.com/capitalize-ai/quorra/internal/chat"
	"github.com/capitalize-ai/quorra/internal/handler"
	"github.com/capitalize-ai/quorra/internal/llm"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/service"
	"github.com/capitalize-ai/quorra/internal/store"
)

const secret = "test-secret"

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	clients := service.NewClientService(service.DefaultClients())
	convs := service.NewConversationService(clients, nil)
	msgs := service.NewMessageService(service.NewMemoryLog(), convs, llm.NewEchoClient(), service.NewTitleGenerator(nil, "", nil), nil)

	srv := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		JWTSecret:     secret,
		Health:        handler.NewHealthHandler(nil),
		Clients:       handler.NewClientHandler(clients),
		Conversations: handler.NewConversationHandler(convs, nil),
		Messages:      handler.NewMessageHandler(msgs, nil),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, srv *httptest.Server, userID string) *chat.App {
	t.Helper()

	provider := auth.NewTokenProvider("")
	if userID != "" {
		tok, err := auth.Issue(secret, model.User{ID: userID}, time.Hour)
		require.NoError(t, err)
		_, err = provider.SignIn(tok)
		require.NoError(t, err)
	}
	app := chat.New(provider, store.New(srv.URL, store.WithTokenSource(provider)), chat.Options{})
	t.Cleanup(app.Close)
	return app
}

func script(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestRunChat_Conversation(t *testing.T) {
	srv := newBackend(t)
	app := newApp(t, srv, "user-1")

	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("renewal is due in March"), 0o600))

	var out bytes.Buffer
	err := runChat(context.Background(), app, script(
		"/clients",
		"/new acme",
		"hello there",
		"/list",
		"/rename Renewal prep",
		"/attach "+notes,
		"/files",
		"summarize",
		"/files",
		"/delete",
		"/quit",
		"never read",
	), &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, emptyDirectoryText)
	assert.Contains(t, got, "Acme Corp [green]")
	assert.Contains(t, got, "Globex [red]")
	assert.Contains(t, got, emptySessionText)
	assert.Contains(t, got, "assistant: You said: hello there")
	assert.Contains(t, got, "[hello there]> ")
	assert.Contains(t, got, "*  1. hello there  (Acme Corp, green)")
	assert.Contains(t, got, `Renamed to "Renewal prep"`)
	assert.Contains(t, got, "[Renewal prep]> ")
	assert.Contains(t, got, "Attached notes.txt")
	assert.Contains(t, got, "1. notes.txt")
	assert.Contains(t, got, "assistant: You said: summarize")
	assert.Contains(t, got, "No pending attachments.")
	assert.Contains(t, got, `Deleted "Renewal prep"`)
	assert.NotContains(t, got, "never read")

	assert.Empty(t, app.Directory.Visible())
	assert.Empty(t, app.Session.ActiveConversationID())
}

func TestRunChat_ReopenShowsHistory(t *testing.T) {
	srv := newBackend(t)

	first := newApp(t, srv, "user-1")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), first, script("/new globex", "quarterly numbers?", "/quit"), &out))

	second := newApp(t, srv, "user-1")
	out.Reset()
	require.NoError(t, runChat(context.Background(), second, script("/open 1", "/quit"), &out))

	got := out.String()
	assert.Contains(t, got, "1. quarterly numbers  (Globex, red)")
	assert.Contains(t, got, "== quarterly numbers ==")
	assert.Contains(t, got, "you: quarterly numbers?")
	assert.Contains(t, got, "assistant: You said: quarterly numbers?")
}

func TestRunChat_Isolation(t *testing.T) {
	srv := newBackend(t)

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), newApp(t, srv, "user-1"), script("/new acme", "secret plans", "/quit"), &out))

	out.Reset()
	require.NoError(t, runChat(context.Background(), newApp(t, srv, "user-2"), script("/list", "/quit"), &out))
	assert.NotContains(t, out.String(), "secret plans")
	assert.Contains(t, out.String(), emptyDirectoryText)
}

func TestRunChat_Errors(t *testing.T) {
	srv := newBackend(t)
	app := newApp(t, srv, "user-1")

	var out bytes.Buffer
	err := runChat(context.Background(), app, script(
		"hello?",
		"/open 3",
		"/rename anything",
		"/delete",
		"/new nobody",
		"/detach 1",
		"/attach /does/not/exist",
		"/bogus",
		"/new acme",
		"/rename    ",
	), &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Open a conversation first")
	assert.Contains(t, got, "No conversation number 3")
	assert.Contains(t, got, "No conversation open.")
	assert.Contains(t, got, "Could not create conversation")
	assert.Contains(t, got, `Could not detach "1"`)
	assert.Contains(t, got, "Could not attach")
	assert.Contains(t, got, "Unknown command /bogus")
	assert.Contains(t, got, "Rename failed")
	assert.False(t, app.Coordinator.Modal().Open)
}

func TestRunChat_FilterByClient(t *testing.T) {
	srv := newBackend(t)
	app := newApp(t, srv, "user-1")

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, script(
		"/new acme",
		"acme question",
		"/new globex",
		"globex question",
		"/filter globex",
		"/quit",
	), &out))

	visible := app.Directory.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "globex", visible[0].ClientID)

	app.SelectClient("")
	assert.Len(t, app.Directory.Visible(), 2)
}

func TestRunChat_SignedOut(t *testing.T) {
	srv := newBackend(t)
	app := newApp(t, srv, "")

	var out bytes.Buffer
	err := runChat(context.Background(), app, script("/quit"), &out)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Contains(t, out.String(), "Not signed in")
}

func TestRunChat_SignOut(t *testing.T) {
	srv := newBackend(t)
	app := newApp(t, srv, "user-1")

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, script("/new acme", "/signout", "hello", "/quit"), &out))

	assert.Contains(t, out.String(), "Signed out.")
	assert.Contains(t, out.String(), "Open a conversation first")
	assert.False(t, app.Context().SignedIn())
}
