package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/auth"
	"github.com/capitalize-ai/quorra/internal/chat"
	"github.com/capitalize-ai/quorra/internal/composer"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/store"
	"github.com/capitalize-ai/quorra/pkg/tracing"
)

const (
	emptyDirectoryText = "Start having conversations by creating a new chat"
	emptySessionText   = "How can I help you today?"
)

const helpText = `Commands:
  /clients            list client organizations
  /filter [client]    show conversations of one client (no argument: all)
  /list               refresh and list conversations
  /new <client>       start a conversation
  /open <n|id>        open a conversation by list number or id
  /rename <title>     rename the open conversation
  /delete             delete the open conversation
  /attach <path>      attach a file to the next message
  /detach <n>         remove a pending attachment
  /files              list pending attachments
  /signout            forget the token
  /quit               leave
Anything else is sent as a message.`

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.cfg.TracingEnabled {
				tp, err := tracing.InitTracer(ctx, "quorra-cli", opts.cfg.TracingEndpoint)
				if err != nil {
					log.Warn("failed to initialize tracing", zap.Error(err))
				} else {
					defer tracing.Shutdown(ctx, tp)
				}
			}

			// The store verifies the token; the client only reads its claims.
			provider := auth.NewTokenProvider("")
			if opts.token != "" {
				if _, err := provider.SignIn(opts.token); err != nil {
					return err
				}
			}

			st := store.New(opts.apiURL,
				store.WithTokenSource(provider),
				store.WithLogger(log),
				store.WithTimeout(opts.cfg.RequestTimeout),
			)
			app := chat.New(provider, st, chat.Options{
				DevUserID:               opts.cfg.DevUserID,
				Development:             opts.cfg.Development(),
				RefreshTitleAfterUpload: opts.cfg.RefreshTitleAfterUpload,
				Logger:                  log,
			})
			defer app.Close()

			return runChat(ctx, app, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runChat drives the workspace from line-oriented input.
func runChat(ctx context.Context, app *chat.App, in io.Reader, out io.Writer) error {
	r := &repl{app: app, out: out}

	if err := app.Start(ctx); err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			fmt.Fprintln(out, "Not signed in. Mint a token with `quorra token --user <id>` and set QUORRA_TOKEN.")
			return err
		}
		fmt.Fprintf(out, "Could not load conversations: %v\n", err)
	}
	fmt.Fprintln(out, "Type /help for commands.")
	r.printConversations()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, r.prompt())
		if !scanner.Scan() {
			break
		}
		if r.handle(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

type repl struct {
	app *chat.App
	out io.Writer
}

func (r *repl) prompt() string {
	if conv := r.app.Session.Snapshot().Conversation; conv != nil {
		return fmt.Sprintf("[%s]> ", conv.Title)
	}
	return "> "
}

// handle runs one input line and reports whether to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "clients":
		r.printClients()
	case "filter":
		r.app.SelectClient(arg)
		r.printConversations()
	case "list":
		if err := r.app.Reload(ctx); err != nil {
			fmt.Fprintf(r.out, "Could not load conversations: %v\n", err)
		}
		r.printConversations()
	case "new":
		if _, err := r.app.NewConversation(ctx, arg); err != nil {
			fmt.Fprintf(r.out, "Could not create conversation: %v\n", err)
			return false
		}
		r.printHistory()
	case "open":
		r.open(ctx, arg)
	case "rename":
		r.rename(ctx, arg)
	case "delete":
		r.delete(ctx)
	case "attach":
		a, err := r.app.Composer.AttachPath(arg)
		if err != nil {
			fmt.Fprintf(r.out, "Could not attach: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Attached %s (%d KB)\n", a.Name, a.SizeKB())
	case "detach":
		i, err := strconv.Atoi(arg)
		if err == nil {
			err = r.app.Composer.RemoveFile(i - 1)
		}
		if err != nil {
			fmt.Fprintf(r.out, "Could not detach %q\n", arg)
			return false
		}
		r.printFiles()
	case "files":
		r.printFiles()
	case "signout":
		if err := r.app.SignOut(ctx); err != nil {
			fmt.Fprintf(r.out, "Sign out failed: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, "Signed out.")
	default:
		fmt.Fprintf(r.out, "Unknown command /%s. Type /help for commands.\n", name)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	if r.app.Session.ActiveConversationID() == "" {
		fmt.Fprintln(r.out, "Open a conversation first (/open <n> or /new <client>).")
		return
	}

	r.app.Composer.SetText(text)
	err := r.app.Composer.Submit(ctx)
	switch {
	case errors.Is(err, composer.ErrNothingToSend):
		return
	case errors.Is(err, composer.ErrBusy):
		fmt.Fprintln(r.out, "Still waiting for the previous reply.")
		return
	case err != nil:
		fmt.Fprintf(r.out, "Send failed: %v\n", err)
		return
	}

	msgs := r.app.Session.Snapshot().Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role != model.RoleUser {
		r.printMessage(msgs[n-1])
	}
}

func (r *repl) open(ctx context.Context, arg string) {
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		visible := r.app.Directory.Visible()
		if n < 1 || n > len(visible) {
			fmt.Fprintf(r.out, "No conversation number %d\n", n)
			return
		}
		id = visible[n-1].ID
	}
	if err := r.app.Open(ctx, id); err != nil && !apperr.Is(err, apperr.KindFetch) {
		fmt.Fprintf(r.out, "Could not open conversation: %v\n", err)
		return
	}
	r.printHistory()
}

func (r *repl) rename(ctx context.Context, title string) {
	conv := r.app.Session.Snapshot().Conversation
	if conv == nil {
		fmt.Fprintln(r.out, "No conversation open.")
		return
	}
	r.app.Coordinator.OpenRename(*conv)
	r.app.Coordinator.SetDraft(title)
	if err := r.app.Coordinator.ConfirmRename(ctx, ""); err != nil {
		fmt.Fprintf(r.out, "Rename failed: %v\n", err)
		r.app.Coordinator.Cancel()
		return
	}
	fmt.Fprintf(r.out, "Renamed to %q\n", strings.TrimSpace(title))
}

func (r *repl) delete(ctx context.Context) {
	conv := r.app.Session.Snapshot().Conversation
	if conv == nil {
		fmt.Fprintln(r.out, "No conversation open.")
		return
	}
	if err := r.app.Coordinator.ConfirmDelete(ctx, *conv); err != nil {
		fmt.Fprintf(r.out, "Delete failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Deleted %q\n", conv.Title)
}

func (r *repl) printClients() {
	clients := r.app.Directory.Clients()
	if len(clients) == 0 {
		fmt.Fprintln(r.out, "No clients.")
		return
	}
	for _, c := range clients {
		fmt.Fprintf(r.out, "  %-16s %s [%s]\n", c.ID, c.Name, c.Status.Tag())
	}
}

func (r *repl) printConversations() {
	if _, err := r.app.Directory.Status(); err != nil {
		fmt.Fprintf(r.out, "Could not load conversations: %v\n", err)
	}
	visible := r.app.Directory.Visible()
	if len(visible) == 0 {
		fmt.Fprintln(r.out, emptyDirectoryText)
		return
	}
	active := r.app.Session.ActiveConversationID()
	for i, c := range visible {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		client := c.ClientName
		if client == "" {
			client = c.ClientID
		}
		fmt.Fprintf(r.out, "%s %2d. %s  (%s, %s)\n", marker, i+1, c.Title, client, c.ClientStatus.Tag())
	}
}

func (r *repl) printHistory() {
	snap := r.app.Session.Snapshot()
	if snap.Conversation != nil {
		fmt.Fprintf(r.out, "== %s ==\n", snap.Conversation.Title)
	}
	if snap.Err != nil {
		fmt.Fprintf(r.out, "Could not load messages: %v\n", snap.Err)
	}
	if snap.EmptyState() {
		fmt.Fprintln(r.out, emptySessionText)
		return
	}
	for _, m := range snap.Messages {
		r.printMessage(m)
	}
}

func (r *repl) printMessage(m model.Message) {
	who := string(m.Role)
	if m.Role == model.RoleUser {
		who = "you"
	}
	ts := ""
	if !m.CreatedAt.IsZero() {
		ts = m.CreatedAt.Local().Format("15:04") + " "
	}
	fmt.Fprintf(r.out, "%s%s: %s\n", ts, who, m.Content.String())
}

func (r *repl) printFiles() {
	files := r.app.Composer.Files()
	if len(files) == 0 {
		fmt.Fprintln(r.out, "No pending attachments.")
		return
	}
	for i, f := range files {
		fmt.Fprintf(r.out, "  %d. %s (%d KB)\n", i+1, f.Name, f.SizeKB())
	}
}
