package session

import (
	"github.com/upsidedowncan/bank-mannru-sub002/internal/assist"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

// Event is one outbound frame pushed to the attached client.
type Event struct {
	Type        string               `json:"type"`
	Surfaces    []SurfaceInfo        `json:"surfaces,omitempty"`
	SurfaceID   string               `json:"surface_id,omitempty"`
	Messages    []chat.Message       `json:"messages,omitempty"`
	Message     *chat.Message        `json:"message,omitempty"`
	MessageID   string               `json:"message_id,omitempty"`
	Reactions   []chat.ReactionGroup `json:"reactions,omitempty"`
	Typing      []string             `json:"typing,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
	Verdict     *assist.Verdict      `json:"verdict,omitempty"`
	Notice      string               `json:"notice,omitempty"`
	Offset      *float64             `json:"offset,omitempty"`
	AutoScroll  bool                 `json:"auto_scroll,omitempty"`
	NotifyNew   bool                 `json:"notify_new,omitempty"`
	NoMore      bool                 `json:"no_more,omitempty"`
}

const (
	EvSurfaces    = "surfaces"
	EvSnapshot    = "snapshot"
	EvAppended    = "appended"
	EvUpdated     = "updated"
	EvDeleted     = "deleted"
	EvPrepended   = "prepended"
	EvSetScroll   = "set_scroll"
	EvReactions   = "reactions"
	EvTyping      = "typing"
	EvSuggestions = "suggestions"
	EvVerdict     = "verdict"
	EvNotice      = "notice"
)

// SurfaceInfo is the directory entry shape sent to clients.
type SurfaceInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"` // channel | conversation | assistant
	Name   string `json:"name"`
	Pinned bool   `json:"pinned,omitempty"`
}

func surfaceInfo(s chat.Surface, localUser string) SurfaceInfo {
	switch v := s.(type) {
	case chat.Channel:
		return SurfaceInfo{ID: v.ID, Kind: "channel", Name: v.Name, Pinned: v.Pinned}
	case chat.Conversation:
		return SurfaceInfo{ID: v.ID, Kind: "conversation", Name: v.OtherMember(localUser)}
	case chat.Assistant:
		return SurfaceInfo{ID: v.SurfaceID(), Kind: "assistant", Name: "Assistant"}
	default:
		return SurfaceInfo{ID: s.SurfaceID(), Kind: "unknown"}
	}
}
