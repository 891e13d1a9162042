// Package engine holds the per-surface synchronization core: the surface
// directory, the chronological message store with optimistic reconciliation,
// and the reaction aggregator.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// echoWindow bounds how long an authoritative row from the local user may
// pre-claim a not-yet-applied optimistic insert. Past the window an identical
// send is treated as a genuinely new message.
const echoWindow = 5 * time.Second

type contentKey struct {
	author string
	kind   chat.MessageKind
	body   string
}

func keyOf(m *chat.Message) contentKey {
	return contentKey{author: m.AuthorID, kind: m.Kind, body: m.Body}
}

// MessageStore owns the ordered message list for one surface selection. A
// surface switch discards the instance entirely; pagination bookkeeping never
// survives a switch. A nil backend store makes the instance non-persistent
// (the assistant surface).
type MessageStore struct {
	log       *zap.SugaredLogger
	store     backend.Store
	surfaceID string
	localUser string
	pageSize  int64
	cap       int

	mu            sync.Mutex
	messages      []*chat.Message
	profiles      map[string]chat.Profile
	noMore        bool
	loadingOlder  bool
	pages         int
	unclaimedEcho map[contentKey][]time.Time
}

func NewMessageStore(log *zap.SugaredLogger, store backend.Store, surfaceID, localUser string, pageSize int64, retentionCap int) *MessageStore {
	return &MessageStore{
		log:           log,
		store:         store,
		surfaceID:     surfaceID,
		localUser:     localUser,
		pageSize:      pageSize,
		cap:           retentionCap,
		profiles:      make(map[string]chat.Profile),
		unclaimedEcho: make(map[contentKey][]time.Time),
	}
}

func (s *MessageStore) SurfaceID() string { return s.surfaceID }

// LoadInitial fetches the most recent page and fully replaces prior state.
// On error the store stays empty.
func (s *MessageStore) LoadInitial(ctx context.Context) error {
	if s.store == nil {
		s.mu.Lock()
		s.messages = nil
		s.noMore = true
		s.mu.Unlock()
		return nil
	}
	page, err := s.store.Messages(ctx, s.surfaceID, s.pageSize, time.Time{})
	if err != nil {
		return fmt.Errorf("load initial page: %w", err)
	}
	profiles, err := s.fetchProfiles(ctx, authorIDs(page, nil))
	if err != nil {
		return fmt.Errorf("resolve authors: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]*chat.Message, 0, len(page))
	for i := range page {
		m := page[i]
		s.messages = append(s.messages, &m)
	}
	s.profiles = profiles
	s.noMore = int64(len(page)) < s.pageSize
	s.loadingOlder = false
	s.pages = 1
	s.unclaimedEcho = make(map[contentKey][]time.Time)
	return nil
}

// LoadOlder prepends the page strictly older than the oldest held message.
// Re-entrant calls and calls after the no-more-history latch are no-ops.
func (s *MessageStore) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if s.store == nil || s.noMore || s.loadingOlder || len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.loadingOlder = true
	before := s.messages[0].CreatedAt
	s.mu.Unlock()

	page, err := s.store.Messages(ctx, s.surfaceID, s.pageSize, before)
	if err != nil {
		s.mu.Lock()
		s.loadingOlder = false
		s.mu.Unlock()
		return fmt.Errorf("load older page: %w", err)
	}
	profiles, perr := s.fetchProfiles(ctx, authorIDs(page, s.cachedProfileIDs()))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingOlder = false
	if perr != nil {
		return fmt.Errorf("resolve authors: %w", perr)
	}
	if int64(len(page)) < s.pageSize {
		s.noMore = true
	}
	seen := make(map[string]bool, len(s.messages))
	for _, m := range s.messages {
		seen[m.ID] = true
	}
	older := make([]*chat.Message, 0, len(page))
	for i := range page {
		m := page[i]
		if seen[m.ID] {
			continue
		}
		older = append(older, &m)
	}
	s.messages = append(older, s.messages...)
	for id, p := range profiles {
		s.profiles[id] = p
	}
	s.pages++
	return nil
}

// ApplyLiveInsert reconciles an authoritative row against the list: the first
// provisional entry with matching (author, kind, body) is replaced in place,
// otherwise the row is appended. The single-pass claim means a second send
// with identical content is never merged into the same provisional entry.
func (s *MessageStore) ApplyLiveInsert(ctx context.Context, m chat.Message) {
	if err := s.EnsureProfiles(ctx, []string{m.AuthorID}); err != nil {
		// append anyway; the name degrades to the raw id
		s.log.Warnw("author profile lookup failed", "author", m.AuthorID, "err", err)
	}
	m.Provisional = false

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.messages {
		if ex.ID == m.ID {
			return
		}
		if ex.Provisional && ex.AuthorID == m.AuthorID && ex.Kind == m.Kind && ex.Body == m.Body {
			msg := m
			s.messages[i] = &msg
			return
		}
	}
	if m.AuthorID == s.localUser {
		key := keyOf(&m)
		s.unclaimedEcho[key] = append(s.pruneEchoes(key), time.Now())
	}
	msg := m
	s.messages = append(s.messages, &msg)
}

// ApplyLiveUpdate patches the matching entry by id. Unknown ids are ignored;
// the row may belong to a page that was never loaded.
func (s *MessageStore) ApplyLiveUpdate(m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.messages {
		if ex.ID != m.ID {
			continue
		}
		patched := *ex
		patched.Body = m.Body
		patched.EditedAt = m.EditedAt
		if m.Gift != nil {
			patched.Gift = m.Gift
		}
		s.messages[i] = &patched
		return
	}
}

// ApplyLiveDelete removes the matching entry by id; no-op when absent.
func (s *MessageStore) ApplyLiveDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.messages {
		if ex.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// InsertOptimistic appends a provisional entry so the sender's view reflects
// the send before any round trip. If the authoritative echo already landed
// (possible when the feed outruns the send path), the insert is skipped and
// the existing entry returned.
func (s *MessageStore) InsertOptimistic(draft chat.Message) chat.Message {
	draft.ID = "local-" + uuid.NewString()
	draft.SurfaceID = s.surfaceID
	draft.AuthorID = s.localUser
	draft.CreatedAt = time.Now().UTC()
	draft.Provisional = true

	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(&draft)
	if echoes := s.pruneEchoes(key); len(echoes) > 0 {
		s.unclaimedEcho[key] = echoes[1:]
		for i := len(s.messages) - 1; i >= 0; i-- {
			if ex := s.messages[i]; !ex.Provisional && keyOf(ex) == key {
				return *ex
			}
		}
		return draft
	}
	msg := draft
	s.messages = append(s.messages, &msg)
	return draft
}

// RemoveOptimistic drops a provisional entry after a failed send so it is not
// left stuck in the list.
func (s *MessageStore) RemoveOptimistic(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.messages {
		if ex.ID == id && ex.Provisional {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Sweep enforces the retention cap, dropping the oldest entries beyond it.
// Pagination bookkeeping, including the no-more-history latch, is untouched:
// evicted rows are reachable again only through LoadOlder.
func (s *MessageStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap <= 0 || len(s.messages) <= s.cap {
		return 0
	}
	dropped := len(s.messages) - s.cap
	s.messages = append([]*chat.Message(nil), s.messages[dropped:]...)
	return dropped
}

// Snapshot returns a copy of the current list in chronological order.
func (s *MessageStore) Snapshot() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *MessageStore) NoMoreHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noMore
}

// MessageIDs returns the ids of all held messages, oldest first.
func (s *MessageStore) MessageIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.ID
	}
	return out
}

// Lookup returns the held message with the given id.
func (s *MessageStore) Lookup(id string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return *m, true
		}
	}
	return chat.Message{}, false
}

// ProfileName resolves a display name from the session cache.
func (s *MessageStore) ProfileName(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p.Name()
	}
	return userID
}

// EnsureProfiles resolves any uncached identities in one batched lookup.
func (s *MessageStore) EnsureProfiles(ctx context.Context, userIDs []string) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	var missing []string
	for _, id := range userIDs {
		if _, ok := s.profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}
	fetched, err := s.store.Profiles(ctx, missing)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for id, p := range fetched {
		s.profiles[id] = p
	}
	s.mu.Unlock()
	return nil
}

// pruneEchoes drops echo records older than the claim window. Caller holds mu.
func (s *MessageStore) pruneEchoes(key contentKey) []time.Time {
	cutoff := time.Now().Add(-echoWindow)
	kept := s.unclaimedEcho[key][:0]
	for _, t := range s.unclaimedEcho[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(s.unclaimedEcho, key)
		return nil
	}
	s.unclaimedEcho[key] = kept
	return kept
}

func (s *MessageStore) cachedProfileIDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.profiles))
	for id := range s.profiles {
		out[id] = true
	}
	return out
}

func (s *MessageStore) fetchProfiles(ctx context.Context, ids []string) (map[string]chat.Profile, error) {
	if s.store == nil || len(ids) == 0 {
		return make(map[string]chat.Profile), nil
	}
	return s.store.Profiles(ctx, ids)
}

// authorIDs collects the distinct authors of a page, skipping already-cached
// identities.
func authorIDs(page []chat.Message, cached map[string]bool) []string {
	seen := make(map[string]bool, len(page))
	var out []string
	for i := range page {
		id := page[i].AuthorID
		if seen[id] || (cached != nil && cached[id]) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
