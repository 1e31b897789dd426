// Package data provides DB models and stores.
package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectionsStore performs connection-row DB operations.
type ConnectionsStore struct {
	coll *mongo.Collection
}

// NewConnectionsStore returns a ConnectionsStore using the provided collection.
func NewConnectionsStore(coll *mongo.Collection) *ConnectionsStore {
	return &ConnectionsStore{coll: coll}
}

// Insert creates a pending connection row from requester to target. The
// unique pair_key index rejects a second row for the same unordered pair;
// that outcome is surfaced as ErrDuplicatePair so the caller can re-read the
// winning row and report a deterministic conflict.
func (s *ConnectionsStore) Insert(ctx context.Context, requesterID, targetID string) (*Connection, error) {
	conn := &Connection{
		UserID:          requesterID,
		ConnectedUserID: targetID,
		PairKey:         PairKey(requesterID, targetID),
		Status:          ConnectionPending,
		CreatedAt:       time.Now(),
	}

	result, err := s.coll.InsertOne(ctx, conn)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicatePair
		}
		return nil, err
	}

	conn.ID = result.InsertedID.(bson.ObjectID)
	return conn, nil
}

// FindByID finds a connection row by its hex id. An unparseable id is
// treated the same as a missing row.
func (s *ConnectionsStore) FindByID(ctx context.Context, id string) (*Connection, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var conn Connection
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&conn); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// FindByPair finds the (at most one) row for the unordered pair {a,b},
// whichever direction it was stored in.
func (s *ConnectionsStore) FindByPair(ctx context.Context, a, b string) (*Connection, error) {
	var conn Connection
	err := s.coll.FindOne(ctx, bson.M{"pair_key": PairKey(a, b)}).Decode(&conn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// SetStatus updates a row's status and records when the recipient responded.
func (s *ConnectionsStore) SetStatus(ctx context.Context, id bson.ObjectID, status ConnectionStatus, respondedAt time.Time) error {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "responded_at": respondedAt}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a row. Used by reject, remove and the expiry sweep; the
// state machine has no tombstones.
func (s *ConnectionsStore) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending returns pending requests for a user, newest first.
// received=true lists requests awaiting the user's response; received=false
// lists requests the user sent. The second return value is the total count
// for pagination.
func (s *ConnectionsStore) ListPending(ctx context.Context, userID string, received bool, limit, offset int64) ([]*Connection, int64, error) {
	field := "connected_user_id"
	if !received {
		field = "user_id"
	}
	filter := bson.M{field: userID, "status": ConnectionPending}
	return s.list(ctx, filter, "created_at", limit, offset)
}

// ListAccepted returns accepted rows involving the user in either storage
// direction, most recently accepted first.
func (s *ConnectionsStore) ListAccepted(ctx context.Context, userID string, limit, offset int64) ([]*Connection, int64, error) {
	filter := bson.M{
		"status": ConnectionAccepted,
		"$or": bson.A{
			bson.M{"user_id": userID},
			bson.M{"connected_user_id": userID},
		},
	}
	return s.list(ctx, filter, "responded_at", limit, offset)
}

func (s *ConnectionsStore) list(ctx context.Context, filter bson.M, sortField string, limit, offset int64) ([]*Connection, int64, error) {
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.M{sortField: -1}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var rows []*Connection
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// AcceptedPeerIDs resolves the user's accepted peers, taking the union of
// both storage directions: a peer may sit in user_id or connected_user_id of
// the accepted row, so neither side alone is enough.
func (s *ConnectionsStore) AcceptedPeerIDs(ctx context.Context, userID string) ([]string, error) {
	filter := bson.M{
		"status": ConnectionAccepted,
		"$or": bson.A{
			bson.M{"user_id": userID},
			bson.M{"connected_user_id": userID},
		},
	}

	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Connection
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	peers := make([]string, 0, len(rows))
	for _, row := range rows {
		peer := row.UserID
		if peer == userID {
			peer = row.ConnectedUserID
		}
		if !seen[peer] {
			seen[peer] = true
			peers = append(peers, peer)
		}
	}
	return peers, nil
}

// DeletePendingBefore deletes pending requests created before the cutoff and
// returns how many were removed.
func (s *ConnectionsStore) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{
		"status":     ConnectionPending,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
