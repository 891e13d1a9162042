package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

func TestToggleRoundTrip(t *testing.T) {
	fs := newFakeStore()
	rs := NewReactions(fs, "general", "bob", nil)
	ctx := context.Background()

	if err := rs.Toggle(ctx, "m1", "👍"); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if !rs.Has("m1", "👍") {
		t.Fatal("Has = false after toggle on")
	}
	if len(fs.reactionCalls) != 1 {
		t.Fatalf("insert calls = %d, want 1", len(fs.reactionCalls))
	}

	if err := rs.Toggle(ctx, "m1", "👍"); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if rs.Has("m1", "👍") {
		t.Fatal("Has = true after toggle off")
	}
	if len(fs.deleteCalls) != 1 {
		t.Fatalf("delete calls = %d, want 1", len(fs.deleteCalls))
	}
	if groups := rs.Groups("m1"); groups != nil {
		t.Errorf("Groups = %v after toggle off, want nil", groups)
	}
}

func TestToggleRevertsOnBackendError(t *testing.T) {
	fs := newFakeStore()
	fs.failReactions = errors.New("mongo down")
	rs := NewReactions(fs, "general", "bob", nil)

	if err := rs.Toggle(context.Background(), "m1", "👍"); err == nil {
		t.Fatal("Toggle: expected error")
	}
	if rs.Has("m1", "👍") {
		t.Error("optimistic flip not reverted after backend failure")
	}
}

func TestToggleOffRevertKeepsOriginalReaction(t *testing.T) {
	fs := newFakeStore()
	rs := NewReactions(fs, "general", "bob", nil)
	stamped := chat.Reaction{
		MessageID: "m1",
		UserID:    "bob",
		Emoji:     "👍",
		UserName:  "Bob",
		SurfaceID: "general",
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	rs.ApplyLive(backend.OpReactionAdded, stamped)

	fs.failReactions = errors.New("mongo down")
	if err := rs.Toggle(context.Background(), "m1", "👍"); err == nil {
		t.Fatal("Toggle: expected error")
	}
	got, ok := rs.byMessage["m1"][stamped.Key()]
	if !ok {
		t.Fatal("reaction missing after revert")
	}
	if !got.CreatedAt.Equal(stamped.CreatedAt) || got.UserName != "Bob" {
		t.Errorf("reverted reaction = %+v, want original timestamp and name", got)
	}
}

func TestEchoOfOwnToggleCollapses(t *testing.T) {
	fs := newFakeStore()
	rs := NewReactions(fs, "general", "bob", nil)

	if err := rs.Toggle(context.Background(), "m1", "🔥"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	// the live-feed echo of our own insert carries the same triple
	rs.ApplyLive(backend.OpReactionAdded, chat.Reaction{MessageID: "m1", UserID: "bob", Emoji: "🔥", SurfaceID: "general"})

	groups := rs.Groups("m1")
	if len(groups) != 1 || groups[0].Count != 1 {
		t.Fatalf("Groups = %+v, want one 🔥 with count 1", groups)
	}
}

func TestGroupsRollup(t *testing.T) {
	rs := NewReactions(nil, "general", "bob", func(id string) string {
		return map[string]string{"bob": "Bob", "carol": "Carol", "dave": "Dave"}[id]
	})

	rs.ApplyLive(backend.OpReactionAdded, chat.Reaction{MessageID: "m1", UserID: "carol", Emoji: "👍"})
	rs.ApplyLive(backend.OpReactionAdded, chat.Reaction{MessageID: "m1", UserID: "dave", Emoji: "👍"})
	rs.ApplyLive(backend.OpReactionAdded, chat.Reaction{MessageID: "m1", UserID: "bob", Emoji: "🔥"})

	groups := rs.Groups("m1")
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	// sorted by emoji byte order: 👍 (F0 9F 91 8D) precedes 🔥 (F0 9F 94 A5)
	thumbs, fire := groups[0], groups[1]
	if fire.Emoji != "🔥" || !fire.Reacted || fire.Count != 1 {
		t.Errorf("🔥 group = %+v, want reacted count 1", fire)
	}
	if thumbs.Emoji != "👍" || thumbs.Reacted || thumbs.Count != 2 {
		t.Errorf("👍 group = %+v, want non-reacted count 2", thumbs)
	}
	if len(thumbs.Names) != 2 || thumbs.Names[0] != "Carol" || thumbs.Names[1] != "Dave" {
		t.Errorf("👍 names = %v, want [Carol Dave]", thumbs.Names)
	}
}

func TestLoadReplacesHeldReactions(t *testing.T) {
	fs := newFakeStore()
	fs.reactions = []chat.Reaction{
		{MessageID: "m1", UserID: "carol", Emoji: "👍"},
		{MessageID: "m2", UserID: "carol", Emoji: "🎉"},
	}
	rs := NewReactions(fs, "general", "bob", nil)
	ctx := context.Background()

	// a stale entry for m1 that the backend no longer has
	rs.ApplyLive(backend.OpReactionAdded, chat.Reaction{MessageID: "m1", UserID: "dave", Emoji: "👎"})

	if err := rs.Load(ctx, []string{"m1", "m2"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if groups := rs.Groups("m1"); len(groups) != 1 || groups[0].Emoji != "👍" {
		t.Errorf("m1 groups = %+v, want only 👍", groups)
	}
	if groups := rs.Groups("m2"); len(groups) != 1 || groups[0].Emoji != "🎉" {
		t.Errorf("m2 groups = %+v, want only 🎉", groups)
	}
}

func TestApplyLiveRemove(t *testing.T) {
	rs := NewReactions(nil, "general", "bob", nil)
	rx := chat.Reaction{MessageID: "m1", UserID: "carol", Emoji: "👍"}

	rs.ApplyLive(backend.OpReactionAdded, rx)
	rs.ApplyLive(backend.OpReactionRemoved, rx)
	if groups := rs.Groups("m1"); groups != nil {
		t.Errorf("Groups = %v after remove, want nil", groups)
	}
	// removing an unknown triple is a no-op
	rs.ApplyLive(backend.OpReactionRemoved, chat.Reaction{MessageID: "ghost", UserID: "x", Emoji: "y"})
}
