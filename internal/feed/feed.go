// Package feed maintains live, ordered views of conversations. Every
// consumer of a conversation shares one reference-counted entry; each
// write path invalidates the entry, which re-reads the full snapshot
// and republishes it to all subscribers.
package feed

import (
	"context"
	"sort"
	"sync"

	"chatify-service/internal/models"
	"chatify-service/internal/repositories"
)

// Snapshot receives the full ordered message list of a conversation.
type Snapshot func(msgs []models.Message)

// Feed fans conversation snapshots out to subscribers.
type Feed struct {
	repo repositories.MessageRepository

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	nextSub  int
	subs     map[int]Snapshot
	snapshot []models.Message
}

// New constructs a Feed over the message repository.
func New(repo repositories.MessageRepository) *Feed {
	return &Feed{repo: repo, entries: make(map[string]*entry)}
}

// Subscribe registers fn for a conversation and returns a cancel func.
// The first subscriber of a conversation triggers the initial snapshot
// load; later subscribers reuse the cached one. fn is called once with
// the current snapshot before Subscribe returns.
func (f *Feed) Subscribe(ctx context.Context, conversationID string, fn Snapshot) (func(), error) {
	f.mu.Lock()
	e, ok := f.entries[conversationID]
	if !ok {
		e = &entry{subs: make(map[int]Snapshot)}
		f.entries[conversationID] = e
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	loaded := ok
	current := e.snapshot
	f.mu.Unlock()

	if !loaded {
		msgs, err := f.load(ctx, conversationID)
		if err != nil {
			f.remove(conversationID, id)
			return nil, err
		}
		current = msgs
	}
	fn(current)

	return func() { f.remove(conversationID, id) }, nil
}

// Invalidate re-reads the conversation and republishes the snapshot.
// A conversation nobody subscribes to is skipped: the next subscriber
// loads fresh state anyway.
func (f *Feed) Invalidate(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	_, ok := f.entries[conversationID]
	f.mu.Unlock()
	if !ok {
		return nil
	}

	msgs, err := f.load(ctx, conversationID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	e, ok := f.entries[conversationID]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	subs := make([]Snapshot, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(msgs)
	}
	return nil
}

// Lookup resolves a reply-to reference against the cached snapshot.
// A missing target (or an inactive conversation) is a silent miss.
func (f *Feed) Lookup(conversationID, messageID string) (models.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[conversationID]
	if !ok {
		return models.Message{}, false
	}
	for _, m := range e.snapshot {
		if m.MessageID == messageID {
			return m, true
		}
	}
	return models.Message{}, false
}

// Subscribers reports the subscriber count for a conversation.
func (f *Feed) Subscribers(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[conversationID]; ok {
		return len(e.subs)
	}
	return 0
}

func (f *Feed) load(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := f.repo.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	// The transport makes no ordering promise; display order is ours
	// to establish.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	f.mu.Lock()
	if e, ok := f.entries[conversationID]; ok {
		e.snapshot = msgs
	}
	f.mu.Unlock()
	return msgs, nil
}

func (f *Feed) remove(conversationID string, subID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[conversationID]
	if !ok {
		return
	}
	delete(e.subs, subID)
	if len(e.subs) == 0 {
		delete(f.entries, conversationID)
	}
}
