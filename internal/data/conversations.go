package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConversationsStore performs conversation and participant DB operations.
// The two collections always move together, so one store owns both.
type ConversationsStore struct {
	conversations *mongo.Collection
	participants  *mongo.Collection
}

// NewConversationsStore returns a ConversationsStore over the two collections.
func NewConversationsStore(conversations, participants *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{conversations: conversations, participants: participants}
}

// UserConversation pairs a conversation with the caller's own participant
// row, which carries their read cursor.
type UserConversation struct {
	Conversation *Conversation
	LastReadAt   time.Time
}

// FindByID returns a conversation by hex id.
func (s *ConversationsStore) FindByID(ctx context.Context, id string) (*Conversation, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var conv Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindDirectBetween finds the direct conversation where both users are
// participants, or ErrNotFound.
func (s *ConversationsStore) FindDirectBetween(ctx context.Context, userID, otherUserID string) (*Conversation, error) {
	// Conversations the first user participates in.
	cursor, err := s.participants.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	var mine []*Participant
	if err := cursor.All(ctx, &mine); err != nil {
		return nil, err
	}
	if len(mine) == 0 {
		return nil, ErrNotFound
	}

	ids := make([]bson.ObjectID, 0, len(mine))
	for _, p := range mine {
		ids = append(ids, p.ConversationID)
	}

	// Of those, the ones the other user is in too.
	cursor, err = s.participants.Find(ctx, bson.M{
		"conversation_id": bson.M{"$in": ids},
		"user_id":         otherUserID,
	})
	if err != nil {
		return nil, err
	}
	var shared []*Participant
	if err := cursor.All(ctx, &shared); err != nil {
		return nil, err
	}
	if len(shared) == 0 {
		return nil, ErrNotFound
	}

	sharedIDs := make([]bson.ObjectID, 0, len(shared))
	for _, p := range shared {
		sharedIDs = append(sharedIDs, p.ConversationID)
	}

	var conv Conversation
	err = s.conversations.FindOne(ctx, bson.M{
		"_id":  bson.M{"$in": sharedIDs},
		"type": ConversationDirect,
	}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// CreateDirect creates a direct conversation with both users as members.
func (s *ConversationsStore) CreateDirect(ctx context.Context, userID, otherUserID string) (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		Type:      ConversationDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := s.conversations.InsertOne(ctx, conv)
	if err != nil {
		return nil, err
	}
	conv.ID = result.InsertedID.(bson.ObjectID)

	members := []interface{}{
		&Participant{ConversationID: conv.ID, UserID: userID, Role: RoleMember, JoinedAt: now},
		&Participant{ConversationID: conv.ID, UserID: otherUserID, Role: RoleMember, JoinedAt: now},
	}
	if _, err := s.participants.InsertMany(ctx, members); err != nil {
		return nil, err
	}
	return conv, nil
}

// IsParticipant reports whether the user has a participant row in the
// conversation.
func (s *ConversationsStore) IsParticipant(ctx context.Context, conversationID bson.ObjectID, userID string) (bool, error) {
	count, err := s.participants.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Participants returns all participant rows of a conversation.
func (s *ConversationsStore) Participants(ctx context.Context, conversationID bson.ObjectID) ([]*Participant, error) {
	cursor, err := s.participants.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TouchLastMessage bumps the conversation's recency marker after a send.
func (s *ConversationsStore) TouchLastMessage(ctx context.Context, conversationID bson.ObjectID, at time.Time) error {
	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message_at": at, "updated_at": at}},
	)
	return err
}

// SetLastRead moves the user's read cursor in the conversation.
func (s *ConversationsStore) SetLastRead(ctx context.Context, conversationID bson.ObjectID, userID string, at time.Time) error {
	result, err := s.participants.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"$set": bson.M{"last_read_at": at}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ParticipantRows returns the user's participant rows across conversations;
// used for unread counting and search scoping.
func (s *ConversationsStore) ParticipantRows(ctx context.Context, userID string) ([]*Participant, error) {
	cursor, err := s.participants.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByUser returns the user's conversations ordered by most recent
// message, with the user's read cursor attached. The second return value is
// the total count for pagination.
func (s *ConversationsStore) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]*UserConversation, int64, error) {
	rows, err := s.ParticipantRows(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(rows))
	if total == 0 {
		return nil, 0, nil
	}

	lastRead := make(map[bson.ObjectID]time.Time, len(rows))
	ids := make([]bson.ObjectID, 0, len(rows))
	for _, p := range rows {
		lastRead[p.ConversationID] = p.LastReadAt
		ids = append(ids, p.ConversationID)
	}

	opts := options.Find().
		SetSort(bson.M{"last_message_at": -1}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := s.conversations.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var convs []*Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, 0, err
	}

	result := make([]*UserConversation, 0, len(convs))
	for _, conv := range convs {
		result = append(result, &UserConversation{
			Conversation: conv,
			LastReadAt:   lastRead[conv.ID],
		})
	}
	return result, total, nil
}
