package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// Reactions maintains the per-message reaction triples for one surface
// selection and exposes the grouped rollup for rendering. The map is keyed by
// the (message, user, emoji) triple, so an optimistic copy and its live-event
// echo collapse to one entry no matter the arrival order.
type Reactions struct {
	store     backend.Store
	surfaceID string
	localUser string
	names     func(string) string

	mu        sync.Mutex
	byMessage map[string]map[chat.ReactionKey]chat.Reaction
}

func NewReactions(store backend.Store, surfaceID, localUser string, names func(string) string) *Reactions {
	if names == nil {
		names = func(id string) string { return id }
	}
	return &Reactions{
		store:     store,
		surfaceID: surfaceID,
		localUser: localUser,
		names:     names,
		byMessage: make(map[string]map[chat.ReactionKey]chat.Reaction),
	}
}

// Load batch-fetches reactions for the given messages, replacing whatever was
// held for them.
func (r *Reactions) Load(ctx context.Context, messageIDs []string) error {
	if r.store == nil || len(messageIDs) == 0 {
		return nil
	}
	rows, err := r.store.ReactionsFor(ctx, messageIDs)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range messageIDs {
		delete(r.byMessage, id)
	}
	for _, rx := range rows {
		r.put(rx)
	}
	return nil
}

// Toggle adds the local user's reaction when absent, removes it when present,
// applying the flip locally before the backend call. The live feed remains
// the source of truth; a concurrent toggle from another tab converges on the
// last delivered event.
func (r *Reactions) Toggle(ctx context.Context, messageID, emoji string) error {
	key := chat.ReactionKey{MessageID: messageID, UserID: r.localUser, Emoji: emoji}

	r.mu.Lock()
	removed, present := r.byMessage[messageID][key]
	if present {
		delete(r.byMessage[messageID], key)
	} else {
		r.put(chat.Reaction{
			MessageID: messageID,
			UserID:    r.localUser,
			Emoji:     emoji,
			SurfaceID: r.surfaceID,
			CreatedAt: time.Now().UTC(),
		})
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	var err error
	if present {
		err = r.store.DeleteReaction(ctx, messageID, r.localUser, emoji)
	} else {
		err = r.store.InsertReaction(ctx, chat.Reaction{
			MessageID: messageID,
			UserID:    r.localUser,
			Emoji:     emoji,
			SurfaceID: r.surfaceID,
		})
	}
	if err != nil {
		// revert the optimistic flip; the user sees the pre-toggle state
		r.mu.Lock()
		if present {
			r.put(removed)
		} else {
			delete(r.byMessage[messageID], key)
		}
		r.mu.Unlock()
		return fmt.Errorf("toggle reaction: %w", err)
	}
	return nil
}

// ApplyLive folds a reaction insert or delete event into the set.
func (r *Reactions) ApplyLive(op backend.EventOp, rx chat.Reaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch op {
	case backend.OpReactionAdded:
		r.put(rx)
	case backend.OpReactionRemoved:
		if set, ok := r.byMessage[rx.MessageID]; ok {
			delete(set, rx.Key())
		}
	}
}

// Groups returns the emoji rollup for a message: count, whether the local
// user reacted, and the reactor display names. Deduplication happens here on
// every computation by virtue of the triple keying.
func (r *Reactions) Groups(messageID string) []chat.ReactionGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byMessage[messageID]
	if len(set) == 0 {
		return nil
	}
	grouped := make(map[string]*chat.ReactionGroup)
	for key := range set {
		g, ok := grouped[key.Emoji]
		if !ok {
			g = &chat.ReactionGroup{Emoji: key.Emoji}
			grouped[key.Emoji] = g
		}
		g.Count++
		g.Names = append(g.Names, r.names(key.UserID))
		if key.UserID == r.localUser {
			g.Reacted = true
		}
	}
	out := make([]chat.ReactionGroup, 0, len(grouped))
	for _, g := range grouped {
		sort.Strings(g.Names)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })
	return out
}

// Has reports whether the local user currently has the given reaction.
func (r *Reactions) Has(messageID, emoji string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byMessage[messageID][chat.ReactionKey{MessageID: messageID, UserID: r.localUser, Emoji: emoji}]
	return ok
}

// put stores a reaction under its triple key. Caller holds mu.
func (r *Reactions) put(rx chat.Reaction) {
	set, ok := r.byMessage[rx.MessageID]
	if !ok {
		set = make(map[chat.ReactionKey]chat.Reaction)
		r.byMessage[rx.MessageID] = set
	}
	set[rx.Key()] = rx
}
