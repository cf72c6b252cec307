package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/quorra/internal/llm"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/service"
)

// llmClient is a test double for llm.Client.
type llmClient struct {
	CompleteFn func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (c *llmClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return c.CompleteFn(ctx, req)
}

func (c *llmClient) Name() string     { return "fake" }
func (c *llmClient) Models() []string { return []string{"fake-1"} }

var clients = []model.Client{
	{ID: "k3", Name: "zeta", Status: model.StatusActive},
	{ID: "k1", Name: "Acme", Status: model.StatusAtRisk},
	{ID: "k2", Name: "Churned Co", Status: model.StatusChurned},
	{ID: "k4", Name: "Prospect Inc", Status: "Prospect"},
	{ID: "k5", Name: "No Status", Status: ""},
	{ID: "k6", Name: "beta", Status: "custom"},
}

func TestClientService_List(t *testing.T) {
	t.Parallel()

	got := service.NewClientService(clients).List()
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"k1", "k6", "k3"}, ids)
}

func TestLoadClients(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`clients:
  - id: acme
    name: Acme Corp
    status: active
  - id: globex
    name: Globex
    status: at risk
`), 0o600))

	got, err := service.LoadClients(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Client{
		{ID: "acme", Name: "Acme Corp", Status: model.StatusActive},
		{ID: "globex", Name: "Globex", Status: model.StatusAtRisk},
	}, got)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("clients:\n  - name: nameless\n"), 0o600))
	_, err = service.LoadClients(bad)
	assert.Error(t, err)

	_, err = service.LoadClients(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConversationService_Ownership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := service.NewConversationService(service.NewClientService(clients), nil)

	_, err := svc.Create(ctx, "nope", "user-1")
	assert.ErrorIs(t, err, service.ErrUnknownClient)

	conv, err := svc.Create(ctx, "k1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, service.DefaultTitle, conv.Title)

	_, err = svc.Get(ctx, "user-2", conv.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.ErrorIs(t, svc.Rename(ctx, "user-2", conv.ID, "x"), service.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "user-2", conv.ID), service.ErrNotFound)
	assert.Empty(t, svc.ListByUser(ctx, "user-2"))

	require.NoError(t, svc.Rename(ctx, "user-1", conv.ID, "Renamed"))
	got, err := svc.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	require.NoError(t, svc.Delete(ctx, "user-1", conv.ID))
	_, err = svc.Get(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, svc.ListByUser(ctx, "user-1"))
}

func TestConversationService_ListByUserOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := service.NewConversationService(nil, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		conv, err := svc.Create(ctx, "k1", "user-1")
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}

	got := svc.ListByUser(ctx, "user-1")
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, ids[i], c.ID)
	}
}

func newMessageService(t *testing.T, client llm.Client) (*service.MessageService, *service.ConversationService, *model.Conversation) {
	t.Helper()
	convs := service.NewConversationService(nil, nil)
	conv, err := convs.Create(context.Background(), "k1", "user-1")
	require.NoError(t, err)
	titles := service.NewTitleGenerator(nil, "", nil)
	return service.NewMessageService(service.NewMemoryLog(), convs, client, titles, nil), convs, conv
}

func TestMessageService_SendNamesConversation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, convs, conv := newMessageService(t, llm.NewEchoClient())

	reply, err := svc.Send(ctx, &model.SendMessageRequest{
		ConversationID: conv.ID,
		UserID:         "user-1",
		Content:        "Draft the renewal plan for next quarter please, with owners and dates",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.True(t, strings.HasPrefix(reply.Content.String(), "You said: Draft the renewal plan"))
	require.NotNil(t, reply.CreatedAt)

	got, err := convs.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft the renewal plan for next quarter please", got.Title)

	_, err = svc.Send(ctx, &model.SendMessageRequest{ConversationID: conv.ID, UserID: "user-1", Content: "second"})
	require.NoError(t, err)
	got, _ = convs.Get(ctx, "user-1", conv.ID)
	assert.Equal(t, "Draft the renewal plan for next quarter please", got.Title)

	msgs, err := svc.List(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.True(t, msgs[0].Content.Structured)
	assert.Equal(t, model.RoleAssistant, msgs[3].Role)
	assert.Less(t, msgs[0].Sequence, msgs[3].Sequence)
}

func TestMessageService_ForeignConversation(t *testing.T) {
	t.Parallel()

	svc, _, conv := newMessageService(t, llm.NewEchoClient())
	_, err := svc.Send(context.Background(), &model.SendMessageRequest{ConversationID: conv.ID, UserID: "intruder", Content: "hi"})
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = svc.List(context.Background(), "intruder", conv.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestMessageService_CompletionFailure(t *testing.T) {
	t.Parallel()

	svc, _, conv := newMessageService(t, &llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("overloaded")
	}})

	_, err := svc.Send(context.Background(), &model.SendMessageRequest{ConversationID: conv.ID, UserID: "user-1", Content: "hi"})
	require.Error(t, err)

	msgs, err := svc.List(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestMessageService_SendWithFilesAddsContext(t *testing.T) {
	t.Parallel()

	var prompt []llm.ChatMessage
	svc, convs, conv := newMessageService(t, &llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt = req.Messages
		return &llm.CompletionResponse{Content: "Summary ready", Model: "fake-1"}, nil
	}})

	reply, err := svc.SendWithFiles(context.Background(), &model.UploadRequest{
		ConversationID: conv.ID,
		UserID:         "user-1",
		Files: []model.Attachment{
			{Name: "notes.txt", ContentType: "text/plain", Data: []byte("Renewal due in May")},
			{Name: "logo.png", Data: []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Summary ready", reply.Content.String())

	require.GreaterOrEqual(t, len(prompt), 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "--- notes.txt (text/plain) ---\nRenewal due in May")
	assert.Contains(t, prompt[0].Content, "logo.png (image/png)")
	assert.Equal(t, "Uploaded files: notes.txt, logo.png", prompt[len(prompt)-1].Content)

	docs := convs.Documents(context.Background(), conv.ID)
	require.Len(t, docs, 2)
	assert.Equal(t, "", docs[1].Text)
}

func TestMessageService_PromptCarriesClientContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	convs := service.NewConversationService(service.NewClientService(clients), nil)
	conv, err := convs.Create(ctx, "k1", "user-1")
	require.NoError(t, err)

	var prompt []llm.ChatMessage
	svc := service.NewMessageService(service.NewMemoryLog(), convs, &llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt = req.Messages
		return &llm.CompletionResponse{Content: "ok", Model: "fake-1"}, nil
	}}, nil, nil)

	_, err = svc.Send(ctx, &model.SendMessageRequest{ConversationID: conv.ID, UserID: "user-1", Content: "status?"})
	require.NoError(t, err)

	require.Len(t, prompt, 3)
	assert.Equal(t, "system", prompt[1].Role)
	assert.Equal(t, "Primary client of this conversation:\n- Name: Acme\n- Status: at risk", prompt[1].Content)
	assert.Equal(t, "status?", prompt[2].Content)
}

func TestMessageService_RollingSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var (
		summaryRequests []string
		prompt          []llm.ChatMessage
	)
	svc, convs, conv := newMessageService(t, &llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.HasPrefix(req.Messages[0].Content, "Summarize this conversation") {
			summaryRequests = append(summaryRequests, req.Messages[0].Content)
			return &llm.CompletionResponse{Content: fmt.Sprintf("section %d", len(summaryRequests)), Model: "fake-1"}, nil
		}
		prompt = req.Messages
		return &llm.CompletionResponse{Content: "ok", Model: "fake-1"}, nil
	}})

	send := func(i int) {
		_, err := svc.Send(ctx, &model.SendMessageRequest{ConversationID: conv.ID, UserID: "user-1", Content: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
	}

	// Each send stores two messages; the eighth reaches sixteen.
	for i := 1; i <= 7; i++ {
		send(i)
	}
	assert.Empty(t, summaryRequests)
	assert.Empty(t, convs.Summary(ctx, conv.ID))

	send(8)
	require.Len(t, summaryRequests, 1)
	assert.Contains(t, summaryRequests[0], "user: turn 1\nassistant: ok")
	assert.Contains(t, summaryRequests[0], "user: turn 8\nassistant: ok")
	assert.NotContains(t, summaryRequests[0], "Previous summary")
	assert.Equal(t, "section 1", convs.Summary(ctx, conv.ID))

	send(9)
	require.Len(t, summaryRequests, 1)
	require.GreaterOrEqual(t, len(prompt), 2)
	assert.Equal(t, "system", prompt[1].Role)
	assert.Equal(t, "Summary of previous conversation:\nsection 1", prompt[1].Content)

	for i := 10; i <= 16; i++ {
		send(i)
	}
	require.Len(t, summaryRequests, 2)
	assert.Contains(t, summaryRequests[1], "Previous summary:\nsection 1")
	assert.Contains(t, summaryRequests[1], "user: turn 9\n")
	assert.NotContains(t, summaryRequests[1], "user: turn 8\n")
	assert.Equal(t, "section 1\n\n---\n\nsection 2", convs.Summary(ctx, conv.ID))
}

func TestMessageService_SummaryFailureKeepsReply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, convs, conv := newMessageService(t, &llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.HasPrefix(req.Messages[0].Content, "Summarize this conversation") {
			return nil, errors.New("overloaded")
		}
		return &llm.CompletionResponse{Content: "ok", Model: "fake-1"}, nil
	}})

	for i := 1; i <= 8; i++ {
		reply, err := svc.Send(ctx, &model.SendMessageRequest{ConversationID: conv.ID, UserID: "user-1", Content: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
		assert.Equal(t, "ok", reply.Content.String())
	}
	assert.Empty(t, convs.Summary(ctx, conv.ID))
}

func TestTitleGenerator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	g := service.NewTitleGenerator(&llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		assert.Contains(t, req.Messages[0].Content, "hello there")
		return &llm.CompletionResponse{Content: "\"Friendly Greeting.\""}, nil
	}}, "gpt-4o-mini", nil)
	assert.Equal(t, "Friendly Greeting", g.Generate(ctx, "hello there"))

	failing := service.NewTitleGenerator(&llmClient{CompleteFn: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("timeout")
	}}, "", nil)
	assert.Equal(t, "one two three four five six seven eight", failing.Generate(ctx, "one two three four five six seven eight nine ten"))

	offline := service.NewTitleGenerator(llm.NewEchoClient(), "", nil)
	assert.Equal(t, service.DefaultTitle, offline.Generate(ctx, "   "))
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Q3 Planning", service.CleanTitle("  'Q3   Planning!' "))
	assert.Equal(t, "", service.CleanTitle(""))
}

func TestMemoryLog(t *testing.T) {
	t.Parallel()

	l := service.NewMemoryLog()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "a"} {
		_, err := l.Append(ctx, &model.Message{ConversationID: id, Role: model.RoleUser, CreatedAt: time.Now()})
		require.NoError(t, err)
	}
	a, err := l.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, uint64(1), a[0].Sequence)
	assert.Equal(t, uint64(3), a[1].Sequence)

	empty, err := l.List(ctx, "none")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
