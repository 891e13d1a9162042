// Package backend defines the external collaborators the chat engine syncs
// against: the durable row store, the per-surface live change feed, and blob
// storage for media uploads.
package backend

import (
	"context"
	"time"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// Store is the durable row store. Messages returns up to limit rows for the
// surface strictly older than before (zero before means "most recent page"),
// sorted ascending by creation time.
type Store interface {
	Messages(ctx context.Context, surfaceID string, limit int64, before time.Time) ([]chat.Message, error)
	InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error)
	UpdateMessageBody(ctx context.Context, id, body string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id string) error

	ReactionsFor(ctx context.Context, messageIDs []string) ([]chat.Reaction, error)
	InsertReaction(ctx context.Context, r chat.Reaction) error
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) error

	Channels(ctx context.Context) ([]chat.Channel, error)
	ConversationsFor(ctx context.Context, userID string) ([]chat.Conversation, error)
	LookupOrCreateConversation(ctx context.Context, a, b string) (*chat.Conversation, error)

	Profiles(ctx context.Context, userIDs []string) (map[string]chat.Profile, error)
}

// Feed is the push-based stream of row-level change events for one surface.
// Subscribe returns a receive channel and a release func; release must be
// called when the surface is deselected so updates stop leaking into a stale
// list.
type Feed interface {
	Subscribe(ctx context.Context, surfaceID string) (<-chan Event, func(), error)
	Publish(ctx context.Context, surfaceID string, ev Event) error
}

// BlobStore uploads a binary blob under a key and returns a publicly
// resolvable URL.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}
