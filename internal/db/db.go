// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections the core uses.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB, verifies the connection with a ping and returns a
// Client bound to the given database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// ConnectionsCollection returns the connection-request collection.
func (c *Client) ConnectionsCollection() *mongo.Collection {
	return c.db.Collection("connections")
}

// PresenceCollection returns the per-user presence collection.
func (c *Client) PresenceCollection() *mongo.Collection {
	return c.db.Collection("presence")
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// ParticipantsCollection returns the conversation-participant collection.
func (c *Client) ParticipantsCollection() *mongo.Collection {
	return c.db.Collection("conversation_participants")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
//
// The unique pair_key index on connections is load-bearing: it is the
// database half of the per-pair write serialization. A racing duplicate
// insert fails with a duplicate-key error instead of producing a second row
// for the same unordered user pair.
func (c *Client) CreateIndexes(ctx context.Context) error {
	connectionIndexes := []mongo.IndexModel{
		{
			// One row per unordered user pair, in either direction.
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// listPending(received) and peer resolution by recipient.
			Keys: bson.D{{Key: "connected_user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// listPending(sent), listConnections and peer resolution by requester.
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// Expiry sweep over stale pending requests.
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}
	if _, err := c.ConnectionsCollection().Indexes().CreateMany(ctx, connectionIndexes); err != nil {
		return fmt.Errorf("failed to create connection indexes: %w", err)
	}

	presenceIndex := mongo.IndexModel{
		// One presence row per user; upserts key on this.
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.PresenceCollection().Indexes().CreateOne(ctx, presenceIndex); err != nil {
		return fmt.Errorf("failed to create presence index: %w", err)
	}

	participantIndexes := []mongo.IndexModel{
		{
			// Participancy checks and markAsRead target a single row.
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// listConversations scans by user.
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := c.ParticipantsCollection().Indexes().CreateMany(ctx, participantIndexes); err != nil {
		return fmt.Errorf("failed to create participant indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			// History pagination: newest first within a conversation.
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	return nil
}
