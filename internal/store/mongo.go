package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// MongoStore persists chats as single documents with the message log
// embedded. Every mutation is a single-document update, so concurrent
// appends to the same chat never interleave at the storage level.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}},
		Options: options.Index().SetName("participants_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &MongoStore{coll: coll}
}

func (s *MongoStore) FindChatByID(ctx context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("find chat: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) FindChatsByParticipant(ctx context.Context, userID string) ([]*models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	defer cur.Close(ctx)
	var out []*models.Chat
	for cur.Next(ctx) {
		var c models.Chat
		if err := cur.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (s *MongoStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.Messages == nil {
		chat.Messages = []models.Message{}
	}
	if chat.UnreadCounts == nil {
		chat.UnreadCounts = make(map[string]int64)
	}
	if _, err := s.coll.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *MongoStore) FindExistingDirectChat(ctx context.Context, participants []string) (*models.Chat, error) {
	filter := bson.M{
		"is_group": false,
		"participants": bson.M{
			"$all":  participants,
			"$size": len(participants),
		},
	}
	var c models.Chat
	if err := s.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, chatID string, msg *models.Message, recipients []string) error {
	set := bson.M{
		"last_message": msg,
		"updated_at":   msg.CreatedAt,
	}
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  set,
	}
	if len(recipients) > 0 {
		inc := bson.M{}
		for _, r := range recipients {
			inc["unread_counts."+r] = 1
		}
		update["$inc"] = inc
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *MongoStore) MarkMessageRead(ctx context.Context, chatID, messageID, readerID string) (bool, error) {
	filter := bson.M{
		"_id": chatID,
		"messages": bson.M{"$elemMatch": bson.M{
			"_id":     messageID,
			"read_by": bson.M{"$ne": readerID},
		}},
	}
	update := bson.M{
		"$push": bson.M{"messages.$.read_by": readerID},
		"$set":  bson.M{"unread_counts." + readerID: 0},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if res.ModifiedCount == 0 {
		return false, nil
	}
	// keep the cached last message's read set in step with the log
	_, _ = s.coll.UpdateOne(ctx,
		bson.M{"_id": chatID, "last_message._id": messageID},
		bson.M{"$addToSet": bson.M{"last_message.read_by": readerID}})
	return true, nil
}
