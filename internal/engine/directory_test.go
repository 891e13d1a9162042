package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

func TestDirectoryOrderingAndSelect(t *testing.T) {
	fs := newFakeStore()
	fs.channels = []chat.Channel{{ID: "general", Name: "General"}, {ID: "market", Name: "Market"}}
	fs.conversations = []chat.Conversation{{ID: "conv-1", Members: []string{"alice", "bob"}}}

	d := NewDirectory(fs, "bob")
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	surfaces := d.Surfaces()
	if len(surfaces) != 4 {
		t.Fatalf("len(Surfaces) = %d, want 4 (2 channels + 1 conversation + assistant)", len(surfaces))
	}
	if surfaces[0].SurfaceID() != "general" || surfaces[2].SurfaceID() != "conv-1" {
		t.Errorf("surface order = [%s %s %s %s]", surfaces[0].SurfaceID(), surfaces[1].SurfaceID(), surfaces[2].SurfaceID(), surfaces[3].SurfaceID())
	}
	if _, ok := surfaces[len(surfaces)-1].(chat.Assistant); !ok {
		t.Error("assistant surface is not last")
	}

	if d.Selected() != nil {
		t.Error("Selected != nil before any selection")
	}
	s, err := d.Select("conv-1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.SurfaceID() != "conv-1" || d.Selected().SurfaceID() != "conv-1" {
		t.Error("selection did not stick")
	}

	if _, err := d.Select("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Select(nope) = %v, want ErrNotFound", err)
	}
	// a failed select keeps the previous selection
	if d.Selected().SurfaceID() != "conv-1" {
		t.Error("failed select clobbered the previous selection")
	}
}

func TestStartConversationDedupes(t *testing.T) {
	fs := newFakeStore()
	d := NewDirectory(fs, "bob")
	ctx := context.Background()

	first, err := d.StartConversation(ctx, "carol")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	again, err := d.StartConversation(ctx, "carol")
	if err != nil {
		t.Fatalf("StartConversation again: %v", err)
	}
	if first.ID != again.ID {
		t.Errorf("conversation ids differ: %s vs %s", first.ID, again.ID)
	}

	count := 0
	for _, s := range d.Surfaces() {
		if s.SurfaceID() == first.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("conversation listed %d times, want 1", count)
	}
}

func TestConversationOtherMember(t *testing.T) {
	c := chat.Conversation{ID: "conv-1", Members: []string{"alice", "bob"}}
	if got := c.OtherMember("bob"); got != "alice" {
		t.Errorf("OtherMember(bob) = %q, want alice", got)
	}
	if got := c.OtherMember("alice"); got != "bob" {
		t.Errorf("OtherMember(alice) = %q, want bob", got)
	}
}
