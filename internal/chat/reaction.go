package chat

import "time"

// Reaction is one (message, user, emoji) triple. The triple is unique: a user
// has at most one reaction with a given emoji on a given message.
type Reaction struct {
	MessageID  string    `bson:"message_id" json:"message_id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	Emoji      string    `bson:"emoji" json:"emoji"`
	UserName   string    `bson:"-" json:"user_name,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	SurfaceID  string    `bson:"surface_id" json:"surface_id"`
}

type ReactionKey struct {
	MessageID string
	UserID    string
	Emoji     string
}

func (r Reaction) Key() ReactionKey {
	return ReactionKey{MessageID: r.MessageID, UserID: r.UserID, Emoji: r.Emoji}
}

// ReactionGroup is the per-emoji rollup rendered under a message.
type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	Reacted bool     `json:"reacted"`
	Names   []string `json:"names"`
}
