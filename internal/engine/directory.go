package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// Directory loads the available surfaces once and tracks which one is
// selected. Exactly one surface is selected at a time; the session layer owns
// the side effects of switching (new store, subscription teardown).
type Directory struct {
	store     backend.Store
	localUser string

	mu            sync.Mutex
	channels      []chat.Channel
	conversations []chat.Conversation
	selected      chat.Surface
}

func NewDirectory(store backend.Store, localUser string) *Directory {
	return &Directory{store: store, localUser: localUser}
}

func (d *Directory) Load(ctx context.Context) error {
	channels, err := d.store.Channels(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	conversations, err := d.store.ConversationsFor(ctx, d.localUser)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	d.mu.Lock()
	d.channels = channels
	d.conversations = conversations
	d.mu.Unlock()
	return nil
}

// Surfaces lists channels, then conversations, then the assistant surface.
func (d *Directory) Surfaces() []chat.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]chat.Surface, 0, len(d.channels)+len(d.conversations)+1)
	for _, c := range d.channels {
		out = append(out, c)
	}
	for _, c := range d.conversations {
		out = append(out, c)
	}
	out = append(out, chat.Assistant{})
	return out
}

// Select marks the surface with the given id as current.
func (d *Directory) Select(id string) (chat.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.surfacesLocked() {
		if s.SurfaceID() == id {
			d.selected = s
			return s, nil
		}
	}
	return nil, fmt.Errorf("surface %q: %w", id, apperr.ErrNotFound)
}

func (d *Directory) Selected() chat.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// StartConversation looks up or creates the direct conversation with the
// given peer and adds it to the directory.
func (d *Directory) StartConversation(ctx context.Context, peer string) (chat.Conversation, error) {
	conv, err := d.store.LookupOrCreateConversation(ctx, d.localUser, peer)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("start conversation: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ex := range d.conversations {
		if ex.ID == conv.ID {
			return ex, nil
		}
	}
	d.conversations = append(d.conversations, *conv)
	return *conv, nil
}

func (d *Directory) surfacesLocked() []chat.Surface {
	out := make([]chat.Surface, 0, len(d.channels)+len(d.conversations)+1)
	for _, c := range d.channels {
		out = append(out, c)
	}
	for _, c := range d.conversations {
		out = append(out, c)
	}
	return append(out, chat.Assistant{})
}
