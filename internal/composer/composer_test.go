package composer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/quorra/internal/composer"
	"github.com/capitalize-ai/quorra/internal/model"
)

type sender struct {
	SendTextFn            func(ctx context.Context, input string) error
	SendWithAttachmentsFn func(ctx context.Context, input string, files []model.Attachment) error
	BusyFn                func() bool
}

func (s *sender) SendText(ctx context.Context, input string) error {
	return s.SendTextFn(ctx, input)
}

func (s *sender) SendWithAttachments(ctx context.Context, input string, files []model.Attachment) error {
	return s.SendWithAttachmentsFn(ctx, input, files)
}

func (s *sender) Busy() bool {
	if s.BusyFn == nil {
		return false
	}
	return s.BusyFn()
}

func TestComposer_SubmitText(t *testing.T) {
	t.Parallel()

	var got string
	c := composer.New(&sender{SendTextFn: func(ctx context.Context, input string) error {
		got = input
		return nil
	}})
	c.SetText("Hello")

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, "Hello", got)
	assert.Equal(t, "", c.Text())
}

func TestComposer_SubmitNothing(t *testing.T) {
	t.Parallel()

	c := composer.New(&sender{})
	assert.ErrorIs(t, c.Submit(context.Background()), composer.ErrNothingToSend)

	c.SetText("  \n\t")
	assert.ErrorIs(t, c.Submit(context.Background()), composer.ErrNothingToSend)
	assert.Equal(t, "  \n\t", c.Text())
}

func TestComposer_SubmitFilesClearsDraft(t *testing.T) {
	t.Parallel()

	var gotInput string
	var gotFiles []model.Attachment
	c := composer.New(&sender{SendWithAttachmentsFn: func(ctx context.Context, input string, files []model.Attachment) error {
		gotInput, gotFiles = input, files
		return nil
	}})
	c.AddFiles(model.Attachment{Name: "fileA"}, model.Attachment{Name: "fileB"})

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, "", gotInput)
	require.Len(t, gotFiles, 2)
	assert.Equal(t, "fileA", gotFiles[0].Name)
	assert.Equal(t, "fileB", gotFiles[1].Name)
	assert.Empty(t, c.Files())
	assert.Equal(t, "", c.Text())
}

func TestComposer_ClearsEvenWhenSendFails(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("boom")
	c := composer.New(&sender{SendTextFn: func(ctx context.Context, input string) error {
		return sendErr
	}})
	c.SetText("Hello")

	assert.ErrorIs(t, c.Submit(context.Background()), sendErr)
	assert.Equal(t, "", c.Text())
}

func TestComposer_BusyKeepsDraft(t *testing.T) {
	t.Parallel()

	c := composer.New(&sender{BusyFn: func() bool { return true }})
	c.SetText("second")
	c.AddFiles(model.Attachment{Name: "a.txt"})

	assert.ErrorIs(t, c.Submit(context.Background()), composer.ErrBusy)
	assert.Equal(t, "second", c.Text())
	assert.Len(t, c.Files(), 1)
}

func TestComposer_RemoveFileKeepsOrder(t *testing.T) {
	t.Parallel()

	c := composer.New(&sender{})
	c.AddFiles(model.Attachment{Name: "a"}, model.Attachment{Name: "b"})
	c.AddFiles(model.Attachment{Name: "c"})

	require.NoError(t, c.RemoveFile(1))
	files := c.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Name)
	assert.Equal(t, "c", files[1].Name)

	assert.Error(t, c.RemoveFile(5))
	assert.Error(t, c.RemoveFile(-1))
}

func TestComposer_AttachPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("meeting notes"), 0o600))

	c := composer.New(&sender{})
	a, err := c.AttachPath(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", a.Name)
	assert.Equal(t, int64(len("meeting notes")), a.Size)
	assert.Len(t, c.Files(), 1)

	_, err = c.AttachPath(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
	assert.Len(t, c.Files(), 1)
}
