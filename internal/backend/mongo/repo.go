// Package mongo implements the durable store over MongoDB collections:
// messages, reactions, channels, conversations, profiles.
package mongo

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

type Repository struct {
	messages      *mongo.Collection
	reactions     *mongo.Collection
	channels      *mongo.Collection
	conversations *mongo.Collection
	profiles      *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	r := &Repository{
		messages:      db.Collection("messages"),
		reactions:     db.Collection("reactions"),
		channels:      db.Collection("channels"),
		conversations: db.Collection("conversations"),
		profiles:      db.Collection("profiles"),
	}
	ctx := context.Background()
	_, _ = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "surface_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("surface_created_idx"),
	})
	_, _ = r.reactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "emoji", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("reaction_triple_idx"),
	})
	_, _ = r.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "members", Value: 1}},
		Options: options.Index().SetName("members_idx"),
	})
	return r
}

func (r *Repository) Messages(ctx context.Context, surfaceID string, limit int64, before time.Time) ([]chat.Message, error) {
	filter := bson.M{"surface_id": surfaceID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []chat.Message
	for cur.Next(ctx) {
		var m chat.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// fetched newest-first; callers want chronological
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *Repository) InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.messages.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	// keep the conversation's last-message cache fresh; best effort
	_, _ = r.conversations.UpdateOne(ctx,
		bson.M{"_id": m.SurfaceID},
		bson.M{"$set": bson.M{"last_message": m, "updated_at": time.Now().UTC()}})
	return m, nil
}

func (r *Repository) UpdateMessageBody(ctx context.Context, id, body string, editedAt time.Time) error {
	res, err := r.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"body":      body,
		"edited_at": editedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	_, err := r.messages.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *Repository) ReactionsFor(ctx context.Context, messageIDs []string) ([]chat.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	cur, err := r.reactions.Find(ctx, bson.M{"message_id": bson.M{"$in": messageIDs}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []chat.Reaction
	for cur.Next(ctx) {
		var rx chat.Reaction
		if err := cur.Decode(&rx); err != nil {
			return nil, err
		}
		out = append(out, rx)
	}
	return out, cur.Err()
}

func (r *Repository) InsertReaction(ctx context.Context, rx chat.Reaction) error {
	if rx.CreatedAt.IsZero() {
		rx.CreatedAt = time.Now().UTC()
	}
	// upsert on the triple so a duplicate toggle from another tab is absorbed
	// by the unique index instead of erroring
	_, err := r.reactions.UpdateOne(ctx,
		bson.M{"message_id": rx.MessageID, "user_id": rx.UserID, "emoji": rx.Emoji},
		bson.M{"$setOnInsert": rx},
		options.Update().SetUpsert(true))
	return err
}

func (r *Repository) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.reactions.DeleteOne(ctx, bson.M{
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	})
	return err
}

func (r *Repository) Channels(ctx context.Context) ([]chat.Channel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "pinned", Value: -1}, {Key: "name", Value: 1}})
	cur, err := r.channels.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []chat.Channel
	for cur.Next(ctx) {
		var c chat.Channel
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (r *Repository) ConversationsFor(ctx context.Context, userID string) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.conversations.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []chat.Conversation
	for cur.Next(ctx) {
		var c chat.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

// LookupOrCreateConversation finds the conversation holding exactly the two
// given identities, creating it when absent. Members are stored sorted so the
// pair is a stable key.
func (r *Repository) LookupOrCreateConversation(ctx context.Context, a, b string) (*chat.Conversation, error) {
	members := []string{a, b}
	sort.Strings(members)

	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	res := r.conversations.FindOneAndUpdate(ctx,
		bson.M{"members": members},
		bson.M{"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID().Hex(),
			"members":    members,
			"created_at": now,
			"updated_at": now,
		}},
		opts)
	var c chat.Conversation
	if err := res.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Profiles(ctx context.Context, userIDs []string) (map[string]chat.Profile, error) {
	out := make(map[string]chat.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	cur, err := r.profiles.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var p chat.Profile
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out[p.UserID] = p
	}
	return out, cur.Err()
}
