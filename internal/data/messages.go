package data

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// Insert saves a message document and returns it with the generated id.
func (s *MessagesStore) Insert(ctx context.Context, conversationID bson.ObjectID, senderID, content, msgType, replyTo string) (*Message, error) {
	if msgType == "" {
		msgType = "text"
	}
	msg := &Message{
		ConversationID:   conversationID,
		SenderID:         senderID,
		Content:          content,
		Type:             msgType,
		ReplyToMessageID: replyTo,
		CreatedAt:        time.Now(),
	}

	result, err := s.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// History returns up to limit messages of a conversation ordered
// oldest→newest. A non-empty beforeID makes the page end strictly before
// that message, for backwards pagination.
func (s *MessagesStore) History(ctx context.Context, conversationID bson.ObjectID, limit int64, beforeID string) ([]*Message, error) {
	filter := bson.M{"conversation_id": conversationID}

	if beforeID != "" {
		oid, err := bson.ObjectIDFromHex(beforeID)
		if err != nil {
			return nil, ErrNotFound
		}
		var before Message
		err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&before)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrNotFound
			}
			return nil, err
		}
		filter["created_at"] = bson.M{"$lt": before.CreatedAt}
	}

	// Query newest first so the limit keeps the most recent page, then
	// reverse into chronological order for the caller.
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// LastMessage returns the newest message of a conversation, or ErrNotFound
// for an empty one.
func (s *MessagesStore) LastMessage(ctx context.Context, conversationID bson.ObjectID) (*Message, error) {
	opts := options.FindOne().SetSort(bson.M{"created_at": -1})

	var msg Message
	err := s.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// CountUnread counts messages in a conversation newer than the user's read
// cursor and not sent by the user themselves.
func (s *MessagesStore) CountUnread(ctx context.Context, conversationID bson.ObjectID, userID string, since time.Time) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"created_at":      bson.M{"$gt": since},
		"sender_id":       bson.M{"$ne": userID},
	})
}

// Search finds messages whose content contains the query, case-insensitive,
// across the given conversations, newest first.
func (s *MessagesStore) Search(ctx context.Context, conversationIDs []bson.ObjectID, query string, limit int64) ([]*Message, error) {
	if len(conversationIDs) == 0 || query == "" {
		return nil, nil
	}

	filter := bson.M{
		"conversation_id": bson.M{"$in": conversationIDs},
		"content": bson.M{
			"$regex":   regexp.QuoteMeta(query),
			"$options": "i",
		},
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
