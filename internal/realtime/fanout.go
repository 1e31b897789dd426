package realtime

import (
	"context"
	"time"
)

// PeerSource resolves a user's accepted connection peers. Satisfied by the
// connections store.
type PeerSource interface {
	AcceptedPeerIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceEvent is pushed to each connected peer when a user's status
// changes.
type PresenceEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// TypingEvent is pushed to a conversation channel while a user is typing.
type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageEvent wraps a newly persisted message for delivery.
type MessageEvent struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
}

// Fanout distributes events to the channels interested clients subscribe
// to. Delivery is best-effort: a failed publish to one recipient never
// blocks the rest, and callers treat the returned error as advisory.
type Fanout struct {
	publisher Publisher
	peers     PeerSource
}

// NewFanout returns a Fanout using the given publisher and peer source.
func NewFanout(publisher Publisher, peers PeerSource) *Fanout {
	return &Fanout{publisher: publisher, peers: peers}
}

// PresenceChanged pushes the user's new status to every accepted peer's
// channel. It tries all peers and returns the first error encountered, if
// any.
func (f *Fanout) PresenceChanged(ctx context.Context, userID, status string, lastSeenAt time.Time) error {
	peerIDs, err := f.peers.AcceptedPeerIDs(ctx, userID)
	if err != nil {
		return err
	}

	event := PresenceEvent{
		Type:       "presence",
		UserID:     userID,
		Status:     status,
		LastSeenAt: lastSeenAt,
	}

	var firstErr error
	for _, peerID := range peerIDs {
		if err := f.publisher.Publish(ctx, UserChannel(peerID), event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Typing pushes a typing indicator to the conversation channel.
func (f *Fanout) Typing(ctx context.Context, conversationID, userID string, isTyping bool) error {
	event := TypingEvent{Type: "typing", UserID: userID, IsTyping: isTyping}
	return f.publisher.Publish(ctx, ConversationChannel(conversationID), event)
}

// NewMessage pushes a persisted message to the conversation channel and to
// each participant's user channel, so clients receive it whether or not the
// conversation is open. Best-effort across all targets.
func (f *Fanout) NewMessage(ctx context.Context, conversationID string, participantIDs []string, message any) error {
	event := MessageEvent{Type: "new_message", Message: message}

	var firstErr error
	if err := f.publisher.Publish(ctx, ConversationChannel(conversationID), event); err != nil {
		firstErr = err
	}
	for _, participantID := range participantIDs {
		if err := f.publisher.Publish(ctx, UserChannel(participantID), event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
