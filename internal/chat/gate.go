// Package chat implements connection-gated conversations and messages.
package chat

import (
	"context"

	"github.com/RovierrHQ/Rovierr-sub004/internal/connection"
	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
)

// ConnectionChecker reports the relationship between two users.
type ConnectionChecker interface {
	StatusBetween(ctx context.Context, userID, otherID string) (connection.PairStatus, error)
}

// Gate decides whether a user may start a conversation, send into one, or
// read one. It composes connection state with conversation participancy;
// it holds no state of its own.
//
// The send/read asymmetry is deliberate: removing a connection blocks new
// messages but never revokes access to history already exchanged.
type Gate struct {
	connections ConnectionChecker
}

// NewGate returns a Gate backed by the given connection checker.
func NewGate(connections ConnectionChecker) *Gate {
	return &Gate{connections: connections}
}

// CanStartConversation requires an accepted connection between the two
// users.
func (g *Gate) CanStartConversation(ctx context.Context, userID, targetID string) error {
	status, err := g.connections.StatusBetween(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if status != connection.StatusConnected {
		return apperrors.ErrNotConnected
	}
	return nil
}

// CanSend requires the sender be a participant and, for direct
// conversations, that the counterparties are still connected. A connection
// removed after the conversation was created fails CONNECTION_REMOVED.
func (g *Gate) CanSend(ctx context.Context, userID string, conv *data.Conversation, participants []*data.Participant) error {
	if !isParticipant(userID, participants) {
		return apperrors.ErrNotParticipant
	}
	if conv.Type != data.ConversationDirect {
		return nil
	}

	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		status, err := g.connections.StatusBetween(ctx, userID, p.UserID)
		if err != nil {
			return err
		}
		if status != connection.StatusConnected {
			return apperrors.ErrConnectionRemoved
		}
	}
	return nil
}

// CanRead requires participancy only. Connection state is irrelevant for
// reads, so history survives a removed connection.
func (g *Gate) CanRead(userID string, participants []*data.Participant) error {
	if !isParticipant(userID, participants) {
		return apperrors.ErrNotParticipant
	}
	return nil
}

func isParticipant(userID string, participants []*data.Participant) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
