package chat

import "time"

// Profile is the per-user display settings row, resolved in batches for all
// authors and reactors of a fetched page.
type Profile struct {
	UserID      string `bson:"_id" json:"user_id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	AvatarColor string `bson:"avatar_color,omitempty" json:"avatar_color,omitempty"`
	AvatarIcon  string `bson:"avatar_icon,omitempty" json:"avatar_icon,omitempty"`
}

// Name falls back to the raw user id when no display name is set.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.UserID
}

// TypingSignal is the ephemeral (surface, user) typing marker.
type TypingSignal struct {
	SurfaceID string    `json:"surface_id"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
}
