package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// fakeStore is an in-memory backend.Store for the engine tests.
type fakeStore struct {
	mu            sync.Mutex
	messages      []chat.Message
	reactions     []chat.Reaction
	channels      []chat.Channel
	conversations []chat.Conversation
	profiles      map[string]chat.Profile

	failMessages  error
	failReactions error

	messageCalls  int
	reactionCalls []chat.Reaction
	deleteCalls   []chat.ReactionKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: map[string]chat.Profile{}}
}

// seed appends n messages to the surface spaced one second apart, oldest
// first, with ids "<surface>-0".."<surface>-(n-1)".
func (f *fakeStore) seed(surfaceID, author string, n int, start time.Time) {
	for i := 0; i < n; i++ {
		f.messages = append(f.messages, chat.Message{
			ID:        fmt.Sprintf("%s-%d", surfaceID, i),
			SurfaceID: surfaceID,
			AuthorID:  author,
			Body:      fmt.Sprintf("msg %d", i),
			Kind:      chat.KindText,
			CreatedAt: start.Add(time.Duration(i) * time.Second),
		})
	}
}

func (f *fakeStore) Messages(ctx context.Context, surfaceID string, limit int64, before time.Time) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCalls++
	if f.failMessages != nil {
		return nil, f.failMessages
	}
	var rows []chat.Message
	for _, m := range f.messages {
		if m.SurfaceID != surfaceID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	if int64(len(rows)) > limit {
		rows = rows[int64(len(rows))-limit:]
	}
	return rows, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *m
	if stored.ID == "" || strings.HasPrefix(stored.ID, "local-") {
		stored.ID = fmt.Sprintf("srv-%d", len(f.messages))
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	f.messages = append(f.messages, stored)
	return &stored, nil
}

func (f *fakeStore) UpdateMessageBody(ctx context.Context, id, body string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages[i].Body = body
			f.messages[i].EditedAt = &editedAt
			return nil
		}
	}
	return fmt.Errorf("message %s not found", id)
}

func (f *fakeStore) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ReactionsFor(ctx context.Context, messageIDs []string) ([]chat.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReactions != nil {
		return nil, f.failReactions
	}
	want := map[string]bool{}
	for _, id := range messageIDs {
		want[id] = true
	}
	var out []chat.Reaction
	for _, r := range f.reactions {
		if want[r.MessageID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertReaction(ctx context.Context, r chat.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReactions != nil {
		return f.failReactions
	}
	f.reactionCalls = append(f.reactionCalls, r)
	f.reactions = append(f.reactions, r)
	return nil
}

func (f *fakeStore) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReactions != nil {
		return f.failReactions
	}
	f.deleteCalls = append(f.deleteCalls, chat.ReactionKey{MessageID: messageID, UserID: userID, Emoji: emoji})
	for i, r := range f.reactions {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			f.reactions = append(f.reactions[:i], f.reactions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) Channels(ctx context.Context) ([]chat.Channel, error) {
	return f.channels, nil
}

func (f *fakeStore) ConversationsFor(ctx context.Context, userID string) ([]chat.Conversation, error) {
	var out []chat.Conversation
	for _, c := range f.conversations {
		for _, m := range c.Members {
			if m == userID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) LookupOrCreateConversation(ctx context.Context, a, b string) (*chat.Conversation, error) {
	members := []string{a, b}
	sort.Strings(members)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if len(c.Members) == 2 && c.Members[0] == members[0] && c.Members[1] == members[1] {
			conv := c
			return &conv, nil
		}
	}
	conv := chat.Conversation{ID: fmt.Sprintf("conv-%d", len(f.conversations)), Members: members}
	f.conversations = append(f.conversations, conv)
	return &conv, nil
}

func (f *fakeStore) Profiles(ctx context.Context, userIDs []string) (map[string]chat.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]chat.Profile{}
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
