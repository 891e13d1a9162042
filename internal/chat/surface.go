package chat

// Surface is any addressable chat destination: a public channel, a two-party
// direct conversation, or the non-persistent assistant surface.
type Surface interface {
	SurfaceID() string
	surface()
}

type Channel struct {
	ID        string `bson:"_id,omitempty" json:"id"`
	Name      string `bson:"name" json:"name"`
	Icon      string `bson:"icon,omitempty" json:"icon,omitempty"`
	Private   bool   `bson:"private" json:"private"`
	AdminOnly bool   `bson:"admin_only" json:"admin_only"`
	Pinned    bool   `bson:"pinned" json:"pinned"`
	Active    bool   `bson:"active" json:"active"`
}

func (c Channel) SurfaceID() string { return c.ID }
func (Channel) surface()            {}

// Conversation holds exactly two participant identities. Members are kept
// sorted so the pair is a stable lookup key.
type Conversation struct {
	ID          string   `bson:"_id,omitempty" json:"id"`
	Members     []string `bson:"members" json:"members"`
	LastMessage *Message `bson:"last_message,omitempty" json:"last_message,omitempty"`
}

func (c Conversation) SurfaceID() string { return c.ID }
func (Conversation) surface()            {}

// Assistant is the singular non-persistent surface. Its history lives only in
// the session that created it; there is no backing collection.
type Assistant struct{}

func (Assistant) SurfaceID() string { return "assistant" }
func (Assistant) surface()          {}

// OtherMember returns the participant that is not the given user, for
// rendering a conversation under the peer's name.
func (c Conversation) OtherMember(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return userID
}
