package chat

import "time"

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindVoice       MessageKind = "voice"
	KindImage       MessageKind = "image"
	KindVideo       MessageKind = "video"
	KindMoneyGift   MessageKind = "money_gift"
	KindPeerPayment MessageKind = "peer_payment"
	KindMarketItem  MessageKind = "market_item"
	KindSystem      MessageKind = "system"
)

// ReplySnapshot is the denormalized view of a reply target, resolved once at
// fetch time so rendering never needs a second lookup.
type ReplySnapshot struct {
	MessageID  string `bson:"message_id" json:"message_id"`
	AuthorID   string `bson:"author_id" json:"author_id"`
	AuthorName string `bson:"author_name,omitempty" json:"author_name,omitempty"`
	Body       string `bson:"body" json:"body"`
}

type MediaRef struct {
	URL      string `bson:"url" json:"url"`
	ThumbURL string `bson:"thumb_url,omitempty" json:"thumb_url,omitempty"`
	Mime     string `bson:"mime" json:"mime"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

type GiftStatus string

const (
	GiftPending GiftStatus = "pending"
	GiftClaimed GiftStatus = "claimed"
)

type GiftMeta struct {
	Amount   int64      `bson:"amount" json:"amount"`
	Currency string     `bson:"currency" json:"currency"`
	Claimant string     `bson:"claimant,omitempty" json:"claimant,omitempty"`
	Status   GiftStatus `bson:"status" json:"status"`
}

type Message struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	SurfaceID string         `bson:"surface_id" json:"surface_id"`
	AuthorID  string         `bson:"author_id" json:"author_id"`
	Body      string         `bson:"body" json:"body"`
	Kind      MessageKind    `bson:"kind" json:"kind"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
	EditedAt  *time.Time     `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReplyTo   *ReplySnapshot `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Media     *MediaRef      `bson:"media,omitempty" json:"media,omitempty"`
	Gift      *GiftMeta      `bson:"gift,omitempty" json:"gift,omitempty"`

	// Provisional marks a client-generated entry awaiting its authoritative
	// echo from the live feed. Never persisted.
	Provisional bool `bson:"-" json:"provisional,omitempty"`
}

func (m *Message) Edited() bool { return m.EditedAt != nil }
