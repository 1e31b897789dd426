package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PresenceStore performs presence-row DB operations.
type PresenceStore struct {
	coll *mongo.Collection
}

// NewPresenceStore returns a PresenceStore using the provided collection.
func NewPresenceStore(coll *mongo.Collection) *PresenceStore {
	return &PresenceStore{coll: coll}
}

// Upsert writes the user's status and returns the resulting row.
//
// last_seen_at semantics: the field moves only when the new status is
// offline ("when did they leave"); on any other status an existing row keeps
// its old value. A brand-new row initializes last_seen_at to now regardless
// of status. The single atomic update avoids the read-then-write race two
// concurrent status updates would otherwise have on the unique user_id index.
func (s *PresenceStore) Upsert(ctx context.Context, userID string, status PresenceStatus, now time.Time) (*Presence, error) {
	set := bson.M{"status": status, "updated_at": now}
	update := bson.M{"$set": set}
	if status == PresenceOffline {
		set["last_seen_at"] = now
	} else {
		update["$setOnInsert"] = bson.M{"last_seen_at": now}
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var row Presence
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&row)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByUser returns the user's presence row, or ErrNotFound if the user has
// never reported a status.
func (s *PresenceStore) FindByUser(ctx context.Context, userID string) (*Presence, error) {
	var row Presence
	if err := s.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&row); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// FindByUsers returns presence rows for the given user set. Users with no
// row are simply absent from the result; callers decide how to present them.
func (s *PresenceStore) FindByUsers(ctx context.Context, userIDs []string) ([]*Presence, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Presence
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
