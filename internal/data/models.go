package data

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Sentinel errors shared by the stores. Services translate these into the
// coded errors the RPC boundary exposes.
var (
	// ErrNotFound means the queried document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePair means an insert lost the race against another writer
	// for the same unordered user pair (unique pair_key index).
	ErrDuplicatePair = errors.New("connection already exists for pair")
)

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

// Connection is a directed relationship-request record. UserID is the
// requester; ConnectedUserID is the recipient. Rejection and removal delete
// the row, so status only ever holds pending or accepted.
type Connection struct {
	ID              bson.ObjectID    `bson:"_id,omitempty"`
	UserID          string           `bson:"user_id"`
	ConnectedUserID string           `bson:"connected_user_id"`
	PairKey         string           `bson:"pair_key"`
	Status          ConnectionStatus `bson:"status"`
	CreatedAt       time.Time        `bson:"created_at"`
	RespondedAt     time.Time        `bson:"responded_at,omitempty"`
}

// PairKey returns the canonical key for an unordered user pair: the smaller
// id first, joined with '|'. Both storage directions of a pair map to the
// same key, which is what the unique index constrains.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// ValidPresenceStatus reports whether s is one of the three known states.
func ValidPresenceStatus(s PresenceStatus) bool {
	return s == PresenceOnline || s == PresenceAway || s == PresenceOffline
}

// Presence is one row per user. LastSeenAt moves only on the transition into
// offline: it records when the user left, not their last heartbeat.
type Presence struct {
	UserID     string         `bson:"user_id"`
	Status     PresenceStatus `bson:"status"`
	LastSeenAt time.Time      `bson:"last_seen_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Conversation struct {
	ID            bson.ObjectID    `bson:"_id,omitempty"`
	Type          ConversationType `bson:"type"`
	Name          string           `bson:"name,omitempty"`
	LastMessageAt time.Time        `bson:"last_message_at,omitempty"`
	CreatedAt     time.Time        `bson:"created_at"`
	UpdatedAt     time.Time        `bson:"updated_at"`
}

type ParticipantRole string

const (
	RoleMember ParticipantRole = "member"
	RoleAdmin  ParticipantRole = "admin"
)

type Participant struct {
	ID             bson.ObjectID   `bson:"_id,omitempty"`
	ConversationID bson.ObjectID   `bson:"conversation_id"`
	UserID         string          `bson:"user_id"`
	Role           ParticipantRole `bson:"role"`
	LastReadAt     time.Time       `bson:"last_read_at,omitempty"`
	JoinedAt       time.Time       `bson:"joined_at"`
}

type Message struct {
	ID               bson.ObjectID `bson:"_id,omitempty"`
	ConversationID   bson.ObjectID `bson:"conversation_id"`
	SenderID         string        `bson:"sender_id"`
	Content          string        `bson:"content"`
	Type             string        `bson:"type"`
	ReplyToMessageID string        `bson:"reply_to_message_id,omitempty"`
	CreatedAt        time.Time     `bson:"created_at"`
}
