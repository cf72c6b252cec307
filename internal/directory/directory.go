// Package directory holds the signed-in user's conversations and derives the
// client-filtered, client-enriched list shown to the user.
package directory

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/quorra/internal/apperr"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// LoadStatus distinguishes "not loaded yet" and "loading" from "loaded but empty".
type LoadStatus int

const (
	StatusIdle LoadStatus = iota
	StatusLoading
	StatusLoaded
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	default:
		return "idle"
	}
}

// Source fetches the directory's inputs from the store.
type Source interface {
	ListClients(ctx context.Context) ([]model.Client, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
}

// Listener observes changes other components must mirror.
type Listener interface {
	TitleChanged(conversationID, title string)
	ConversationRemoved(conversationID string)
}

// Directory is safe for concurrent use. Listeners are called without the lock held.
type Directory struct {
	logger *logger.Logger

	mu                     sync.RWMutex
	clients                []model.Client
	conversations          []model.Conversation
	selectedClientID       string
	selectedConversationID string
	status                 LoadStatus
	loadErr                error
	loadSeq                uint64

	// local changes made while a load is in flight
	localAdds    []model.Conversation
	localRemoves map[string]bool

	// revisions of the DeriveVisible inputs
	clientsRev uint64
	convRev    uint64
	memo       visibleMemo

	listeners []Listener
}

type visibleMemo struct {
	valid      bool
	clientsRev uint64
	convRev    uint64
	filter     string
	out        []model.EnrichedConversation
}

// New creates an empty directory.
func New(log *logger.Logger) *Directory {
	return &Directory{logger: logger.OrNop(log)}
}

// Subscribe registers a listener.
func (d *Directory) Subscribe(l Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Load fetches clients and conversations for userID. Any failure leaves the
// directory empty and returns a fetch failure; it never panics or keeps stale data.
// Conversations added or removed locally while the fetch was in flight are
// kept that way. Titles that differ from the held ones reach listeners as
// title changes.
func (d *Directory) Load(ctx context.Context, src Source, userID string) error {
	const op apperr.Op = "directory.Load"

	d.mu.Lock()
	d.loadSeq++
	seq := d.loadSeq
	d.status = StatusLoading
	d.loadErr = nil
	d.localAdds = nil
	d.localRemoves = nil
	d.mu.Unlock()

	var (
		clients []model.Client
		convs   []model.Conversation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clients, err = src.ListClients(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		convs, err = src.ListConversations(gctx, userID)
		return err
	})
	err := g.Wait()

	d.mu.Lock()
	if seq != d.loadSeq {
		// a newer Load or Reset superseded this one
		d.mu.Unlock()
		return nil
	}
	d.status = StatusLoaded
	var changes []titleChange
	if err != nil {
		d.logger.Warn("directory load failed", zap.String("user_id", userID), zap.Error(err))
		d.loadErr = apperr.Fetch(op, err)
		d.clients = nil
		d.conversations = nil
		d.convRev++
	} else {
		d.clients = clients
		changes = d.replaceConversationsLocked(d.mergeLocalLocked(convs))
	}
	d.localAdds = nil
	d.localRemoves = nil
	d.clientsRev++
	loadErr := d.loadErr
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	d.notifyTitles(listeners, changes)
	return loadErr
}

type titleChange struct {
	conversationID string
	title          string
}

// mergeLocalLocked reapplies the adds and removes made during a load.
func (d *Directory) mergeLocalLocked(convs []model.Conversation) []model.Conversation {
	if len(d.localAdds) == 0 && len(d.localRemoves) == 0 {
		return convs
	}
	out := make([]model.Conversation, 0, len(convs)+len(d.localAdds))
	seen := make(map[string]bool, len(convs))
	for _, c := range convs {
		seen[c.ID] = true
		if !d.localRemoves[c.ID] {
			out = append(out, c)
		}
	}
	for _, c := range d.localAdds {
		if !seen[c.ID] && !d.localRemoves[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// replaceConversationsLocked swaps in convs and reports the held
// conversations whose title differs in the new list.
func (d *Directory) replaceConversationsLocked(convs []model.Conversation) []titleChange {
	held := make(map[string]string, len(d.conversations))
	for _, c := range d.conversations {
		held[c.ID] = c.Title
	}
	var changes []titleChange
	for _, c := range convs {
		if old, ok := held[c.ID]; ok && old != c.Title {
			changes = append(changes, titleChange{conversationID: c.ID, title: c.Title})
		}
	}
	d.conversations = append([]model.Conversation(nil), convs...)
	d.convRev++
	return changes
}

func (d *Directory) notifyTitles(listeners []Listener, changes []titleChange) {
	for _, ch := range changes {
		d.logger.Debug("conversation title updated",
			zap.String("conversation_id", ch.conversationID),
			zap.String("title", ch.title),
		)
		for _, l := range listeners {
			l.TitleChanged(ch.conversationID, ch.title)
		}
	}
}

// Reset empties the directory, e.g. on sign-out.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadSeq++
	d.clients = nil
	d.conversations = nil
	d.selectedClientID = ""
	d.selectedConversationID = ""
	d.status = StatusIdle
	d.loadErr = nil
	d.localAdds = nil
	d.localRemoves = nil
	d.clientsRev++
	d.convRev++
}

// Status returns the load status and the last load error.
func (d *Directory) Status() (LoadStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status, d.loadErr
}

// SetClients replaces the client list.
func (d *Directory) SetClients(clients []model.Client) {
	d.mu.Lock()
	d.clients = append([]model.Client(nil), clients...)
	d.clientsRev++
	d.mu.Unlock()
}

// SetConversations replaces the raw conversation list. Changed titles of
// conversations already held reach listeners.
func (d *Directory) SetConversations(convs []model.Conversation) {
	d.mu.Lock()
	changes := d.replaceConversationsLocked(convs)
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	d.notifyTitles(listeners, changes)
}

// Clients returns a copy of the client list.
func (d *Directory) Clients() []model.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.Client(nil), d.clients...)
}

// SelectClient sets the client filter. An empty id shows all conversations.
func (d *Directory) SelectClient(clientID string) {
	d.mu.Lock()
	d.selectedClientID = clientID
	d.mu.Unlock()
}

// SelectedClient returns the current filter ("" for all).
func (d *Directory) SelectedClient() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectedClientID
}

// SelectConversation marks a conversation as the selected entry.
func (d *Directory) SelectConversation(conversationID string) {
	d.mu.Lock()
	d.selectedConversationID = conversationID
	d.mu.Unlock()
}

// SelectedConversation returns the selected conversation id.
func (d *Directory) SelectedConversation() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectedConversationID
}

// Conversation looks up a conversation by id.
func (d *Directory) Conversation(conversationID string) (model.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.conversations {
		if c.ID == conversationID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// Visible returns the filtered, enriched list. The result is memoized on the
// revisions of its inputs and recomputed only when one of them changes.
func (d *Directory) Visible() []model.EnrichedConversation {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.memo
	if !m.valid || m.clientsRev != d.clientsRev || m.convRev != d.convRev || m.filter != d.selectedClientID {
		d.memo = visibleMemo{
			valid:      true,
			clientsRev: d.clientsRev,
			convRev:    d.convRev,
			filter:     d.selectedClientID,
			out:        DeriveVisible(d.clients, d.conversations, d.selectedClientID),
		}
	}
	return append([]model.EnrichedConversation(nil), d.memo.out...)
}

// ApplyTitleUpdate changes one conversation's title in place. It is the only
// path by which titles change; listeners hear about it only when the title
// actually differs, so repeated calls with the same title are no-ops.
func (d *Directory) ApplyTitleUpdate(conversationID, title string) bool {
	d.mu.Lock()
	changed := false
	for i := range d.conversations {
		if d.conversations[i].ID == conversationID {
			if d.conversations[i].Title != title {
				d.conversations[i].Title = title
				d.convRev++
				changed = true
			}
			break
		}
	}
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	if !changed {
		return false
	}
	d.logger.Debug("conversation title updated",
		zap.String("conversation_id", conversationID),
		zap.String("title", title),
	)
	for _, l := range listeners {
		l.TitleChanged(conversationID, title)
	}
	return true
}

// AddConversation appends a newly created conversation and selects it.
func (d *Directory) AddConversation(conv model.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations = append(d.conversations, conv)
	d.selectedConversationID = conv.ID
	d.convRev++
	if d.status == StatusLoading {
		d.localAdds = append(d.localAdds, conv)
	}
}

// RemoveConversation drops a conversation and tells listeners.
func (d *Directory) RemoveConversation(conversationID string) bool {
	d.mu.Lock()
	removed := false
	for i := range d.conversations {
		if d.conversations[i].ID == conversationID {
			d.conversations = append(d.conversations[:i:i], d.conversations[i+1:]...)
			removed = true
			break
		}
	}
	if d.status == StatusLoading {
		if d.localRemoves == nil {
			d.localRemoves = make(map[string]bool)
		}
		d.localRemoves[conversationID] = true
	}
	if removed {
		d.convRev++
		if d.selectedConversationID == conversationID {
			d.selectedConversationID = ""
		}
	}
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	if removed {
		for _, l := range listeners {
			l.ConversationRemoved(conversationID)
		}
	}
	return removed
}

// DeriveVisible joins conversations with their clients and applies the client
// filter. It is a pure function of its inputs; input order is preserved.
func DeriveVisible(clients []model.Client, conversations []model.Conversation, clientFilter string) []model.EnrichedConversation {
	byID := make(map[string]model.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	out := make([]model.EnrichedConversation, 0, len(conversations))
	for _, conv := range conversations {
		if clientFilter != "" && conv.ClientID != clientFilter {
			continue
		}
		entry := model.EnrichedConversation{Conversation: conv}
		if c, ok := byID[conv.ClientID]; ok {
			entry.ClientName = c.Name
			entry.ClientStatus = c.Status
		}
		out = append(out, entry)
	}
	return out
}
