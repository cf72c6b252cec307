// Package chat wires the identity provider, conversation store, directory,
// session controller, composer and rename/delete coordinator into one
// workspace for a front end to drive.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/auth"
	"github.com/capitalize-ai/quorra/internal/composer"
	"github.com/capitalize-ai/quorra/internal/coordinator"
	"github.com/capitalize-ai/quorra/internal/directory"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/session"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// Store is everything the workspace needs from the conversation store.
type Store interface {
	directory.Source
	session.Store
	coordinator.Store
	CreateConversation(ctx context.Context, clientID, userID string) (*model.Conversation, error)
}

// Options configures an App.
type Options struct {
	// DevUserID is used as a placeholder identity when the provider has no
	// user. It only applies when Development is set.
	DevUserID   string
	Development bool

	RefreshTitleAfterUpload bool
	Logger                  *logger.Logger
}

// App is the chat workspace.
type App struct {
	provider auth.Provider
	store    Store
	opts     Options
	logger   *logger.Logger

	Directory   *directory.Directory
	Session     *session.Controller
	Composer    *composer.Composer
	Coordinator *coordinator.Coordinator

	mu          sync.Mutex
	sc          model.SessionContext
	unsubscribe func()
}

// New wires the components. Nothing is fetched until Start.
func New(provider auth.Provider, store Store, opts Options) *App {
	log := logger.OrNop(opts.Logger)
	dir := directory.New(log)
	sess := session.New(store, dir, session.Options{
		RefreshTitleAfterUpload: opts.RefreshTitleAfterUpload,
		Logger:                  log,
	})
	dir.Subscribe(sess)

	return &App{
		provider:    provider,
		store:       store,
		opts:        opts,
		logger:      log.Named("chat"),
		Directory:   dir,
		Session:     sess,
		Composer:    composer.New(sess),
		Coordinator: coordinator.New(store, dir, log),
	}
}

// Start resolves the current user, subscribes to auth changes and loads the
// directory. Without a user the workspace stays signed out and an
// AuthUnavailable error is returned.
func (a *App) Start(ctx context.Context) error {
	const op apperr.Op = "chat.Start"

	a.mu.Lock()
	if a.unsubscribe == nil {
		a.unsubscribe = a.provider.OnAuthStateChange(a.handleAuthChange)
	}
	a.mu.Unlock()

	user, err := a.provider.CurrentUser(ctx)
	if err != nil || user == nil || user.ID == "" {
		if a.opts.Development && a.opts.DevUserID != "" {
			a.logger.Warn("no signed-in user, using development placeholder",
				zap.String("user_id", a.opts.DevUserID),
				zap.Error(err),
			)
			user = &model.User{ID: a.opts.DevUserID, DisplayName: "Developer"}
		} else {
			if err == nil {
				err = auth.ErrSignedOut
			}
			a.setUser(nil)
			return apperr.Auth(op, err)
		}
	}

	a.setUser(user)
	return a.Reload(ctx)
}

// Reload refetches clients and conversations for the signed-in user.
func (a *App) Reload(ctx context.Context) error {
	const op apperr.Op = "chat.Reload"

	userID := a.Context().UserID()
	if userID == "" {
		return apperr.Auth(op, auth.ErrSignedOut)
	}
	return a.Directory.Load(ctx, a.store, userID)
}

// Context returns the current session context.
func (a *App) Context() model.SessionContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sc
}

// NewConversation creates a conversation for clientID, adds it to the
// directory and opens it.
func (a *App) NewConversation(ctx context.Context, clientID string) (*model.Conversation, error) {
	const op apperr.Op = "chat.NewConversation"

	if clientID == "" {
		return nil, apperr.E(op, apperr.KindInvalid, errors.New("client id is required"))
	}
	userID := a.Context().UserID()
	if userID == "" {
		return nil, apperr.Auth(op, auth.ErrSignedOut)
	}

	conv, err := a.store.CreateConversation(ctx, clientID, userID)
	if err != nil {
		return nil, apperr.Mutation(op, err)
	}
	a.Directory.AddConversation(*conv)
	a.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("client_id", clientID),
	)

	if err := a.Session.Select(ctx, *conv); err != nil {
		return conv, err
	}
	return conv, nil
}

// Open selects a conversation from the directory and loads its history.
func (a *App) Open(ctx context.Context, conversationID string) error {
	const op apperr.Op = "chat.Open"

	conv, ok := a.Directory.Conversation(conversationID)
	if !ok {
		return apperr.E(op, apperr.KindInvalid, fmt.Errorf("conversation %q not found", conversationID))
	}
	a.Directory.SelectConversation(conversationID)
	return a.Session.Select(ctx, conv)
}

// SelectClient filters the directory; "" shows every client.
func (a *App) SelectClient(clientID string) {
	a.Directory.SelectClient(clientID)
}

// SignOut signs out through the provider and resets the workspace.
func (a *App) SignOut(ctx context.Context) error {
	err := a.provider.SignOut(ctx)
	a.handleAuthChange(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Close stops listening for auth changes.
func (a *App) Close() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// handleAuthChange resets everything when the user goes away or changes.
// A new user's directory is fetched on the next Reload.
func (a *App) handleAuthChange(user *model.User) {
	prev := a.Context().UserID()
	next := ""
	if user != nil {
		next = user.ID
	}
	if prev == next && user != nil {
		a.setUser(user)
		return
	}

	a.logger.Info("auth state changed", zap.String("previous_user_id", prev), zap.String("user_id", next))
	a.setUser(user)
	a.Session.Clear()
	a.Directory.Reset()
	a.Coordinator.Cancel()
}

func (a *App) setUser(user *model.User) {
	sc := model.SessionContext{User: user}
	a.mu.Lock()
	a.sc = sc
	a.mu.Unlock()
	a.Session.SetContext(sc)
}
