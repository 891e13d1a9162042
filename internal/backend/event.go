package backend

import (
	"encoding/json"
	"fmt"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

type EventOp string

const (
	OpMessageInserted EventOp = "message.inserted"
	OpMessageUpdated  EventOp = "message.updated"
	OpMessageDeleted  EventOp = "message.deleted"
	OpReactionAdded   EventOp = "reaction.added"
	OpReactionRemoved EventOp = "reaction.removed"
	OpTypingStarted   EventOp = "typing.started"
	OpTypingStopped   EventOp = "typing.stopped"
)

// Event is one row-level change delivered on the live feed. Exactly one of
// the payload fields is set, matching Op.
type Event struct {
	Op        EventOp            `json:"op"`
	SurfaceID string             `json:"surface_id"`
	Message   *chat.Message      `json:"message,omitempty"`
	MessageID string             `json:"message_id,omitempty"`
	Reaction  *chat.Reaction     `json:"reaction,omitempty"`
	Typing    *chat.TypingSignal `json:"typing,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode feed event: %w", err)
	}
	if e.Op == "" {
		return Event{}, fmt.Errorf("decode feed event: missing op")
	}
	return e, nil
}
