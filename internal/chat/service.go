package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

const maxMessageLength = 4000

// ConversationStore is the conversation persistence surface.
type ConversationStore interface {
	FindByID(ctx context.Context, id string) (*data.Conversation, error)
	FindDirectBetween(ctx context.Context, userID, otherUserID string) (*data.Conversation, error)
	CreateDirect(ctx context.Context, userID, otherUserID string) (*data.Conversation, error)
	Participants(ctx context.Context, conversationID bson.ObjectID) ([]*data.Participant, error)
	TouchLastMessage(ctx context.Context, conversationID bson.ObjectID, at time.Time) error
	SetLastRead(ctx context.Context, conversationID bson.ObjectID, userID string, at time.Time) error
	ParticipantRows(ctx context.Context, userID string) ([]*data.Participant, error)
	ListByUser(ctx context.Context, userID string, limit, offset int64) ([]*data.UserConversation, int64, error)
}

// MessageStore is the message persistence surface.
type MessageStore interface {
	Insert(ctx context.Context, conversationID bson.ObjectID, senderID, content, msgType, replyTo string) (*data.Message, error)
	History(ctx context.Context, conversationID bson.ObjectID, limit int64, beforeID string) ([]*data.Message, error)
	LastMessage(ctx context.Context, conversationID bson.ObjectID) (*data.Message, error)
	CountUnread(ctx context.Context, conversationID bson.ObjectID, userID string, since time.Time) (int64, error)
	Search(ctx context.Context, conversationIDs []bson.ObjectID, query string, limit int64) ([]*data.Message, error)
}

// MessageFanout pushes a persisted message to its recipients.
type MessageFanout interface {
	NewMessage(ctx context.Context, conversationID string, participantIDs []string, message any) error
}

// MessagePayload is the wire shape of a message event.
type MessagePayload struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	SenderID         string    `json:"senderId"`
	Content          string    `json:"content"`
	Type             string    `json:"type"`
	ReplyToMessageID string    `json:"replyToMessageId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation *data.Conversation
	LastMessage  *data.Message
	UnreadCount  int64
}

// Service implements conversation and message operations, consulting the
// Gate before any write.
type Service struct {
	conversations ConversationStore
	messages      MessageStore
	gate          *Gate
	fanout        MessageFanout
	log           *logger.Logger
}

// NewService returns a chat Service.
func NewService(conversations ConversationStore, messages MessageStore, gate *Gate, fanout MessageFanout, log *logger.Logger) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		gate:          gate,
		fanout:        fanout,
		log:           log,
	}
}

// GetOrCreateConversation returns the direct conversation between the two
// users, creating it if absent. Requires an accepted connection.
func (s *Service) GetOrCreateConversation(ctx context.Context, userID, targetID string) (*data.Conversation, error) {
	if userID == "" || targetID == "" || userID == targetID {
		return nil, apperrors.ErrInvalidArgument
	}
	if err := s.gate.CanStartConversation(ctx, userID, targetID); err != nil {
		return nil, err
	}

	conv, err := s.conversations.FindDirectBetween(ctx, userID, targetID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, data.ErrNotFound) {
		return nil, apperrors.Internal("failed to look up conversation", err)
	}

	conv, err = s.conversations.CreateDirect(ctx, userID, targetID)
	if err != nil {
		return nil, apperrors.Internal("failed to create conversation", err)
	}
	s.log.Info("conversation created", "conversation", conv.ID.Hex(), "user", userID, "peer", targetID)
	return conv, nil
}

// SendMessage persists a message after the gate allows it, then fans the
// event out to the conversation channel and every participant's user
// channel. Fan-out failures are logged; the send has already succeeded.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID, content, replyTo string) (*data.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxMessageLength {
		return nil, apperrors.ErrInvalidArgument
	}

	conv, participants, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanSend(ctx, userID, conv, participants); err != nil {
		return nil, err
	}

	msg, err := s.messages.Insert(ctx, conv.ID, userID, content, "text", replyTo)
	if err != nil {
		return nil, apperrors.Internal("failed to store message", err)
	}

	if err := s.conversations.TouchLastMessage(ctx, conv.ID, msg.CreatedAt); err != nil {
		s.log.Warn("failed to update conversation timestamp", "conversation", conversationID, "err", err)
	}

	participantIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		participantIDs = append(participantIDs, p.UserID)
	}
	if err := s.fanout.NewMessage(ctx, conv.ID.Hex(), participantIDs, payloadFor(msg)); err != nil {
		s.log.Warn("message fan-out incomplete", "conversation", conversationID, "err", err)
	}
	return msg, nil
}

// GetMessages returns conversation history, oldest first. Participancy is
// the only requirement; a removed connection does not hide history.
func (s *Service) GetMessages(ctx context.Context, userID, conversationID string, limit int64, beforeID string) ([]*data.Message, error) {
	conv, participants, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanRead(userID, participants); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	msgs, err := s.messages.History(ctx, conv.ID, limit, beforeID)
	if err != nil {
		return nil, apperrors.Internal("failed to load messages", err)
	}
	return msgs, nil
}

// ListConversations returns the user's conversations, most recent activity
// first, each with its last message and the caller's unread count.
func (s *Service) ListConversations(ctx context.Context, userID string, limit, offset int64) ([]*ConversationSummary, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, total, err := s.conversations.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list conversations", err)
	}

	summaries := make([]*ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := &ConversationSummary{Conversation: row.Conversation}

		last, err := s.messages.LastMessage(ctx, row.Conversation.ID)
		if err != nil && !errors.Is(err, data.ErrNotFound) {
			return nil, 0, apperrors.Internal("failed to load last message", err)
		}
		summary.LastMessage = last

		unread, err := s.messages.CountUnread(ctx, row.Conversation.ID, userID, row.LastReadAt)
		if err != nil {
			return nil, 0, apperrors.Internal("failed to count unread messages", err)
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}
	return summaries, total, nil
}

// MarkAsRead moves the caller's read cursor to now.
func (s *Service) MarkAsRead(ctx context.Context, userID, conversationID string) error {
	conv, participants, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.gate.CanRead(userID, participants); err != nil {
		return err
	}

	if err := s.conversations.SetLastRead(ctx, conv.ID, userID, time.Now()); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return apperrors.ErrNotParticipant
		}
		return apperrors.Internal("failed to mark conversation read", err)
	}
	return nil
}

// UnreadCount returns the user's total unread messages across all their
// conversations.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	rows, err := s.conversations.ParticipantRows(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal("failed to list conversations", err)
	}

	var total int64
	for _, row := range rows {
		n, err := s.messages.CountUnread(ctx, row.ConversationID, userID, row.LastReadAt)
		if err != nil {
			return 0, apperrors.Internal("failed to count unread messages", err)
		}
		total += n
	}
	return total, nil
}

// SearchMessages searches the user's conversations for messages matching
// the query, case-insensitively.
func (s *Service) SearchMessages(ctx context.Context, userID, query string, limit int64) ([]*data.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.conversations.ParticipantRows(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list conversations", err)
	}
	if len(rows) == 0 {
		return []*data.Message{}, nil
	}

	convIDs := make([]bson.ObjectID, 0, len(rows))
	for _, row := range rows {
		convIDs = append(convIDs, row.ConversationID)
	}

	msgs, err := s.messages.Search(ctx, convIDs, query, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to search messages", err)
	}
	return msgs, nil
}

func (s *Service) loadConversation(ctx context.Context, conversationID string) (*data.Conversation, []*data.Participant, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		// A conversation the caller cannot see and one that does not exist
		// are indistinguishable to them.
		if errors.Is(err, data.ErrNotFound) {
			return nil, nil, apperrors.ErrNotParticipant
		}
		return nil, nil, apperrors.Internal("failed to look up conversation", err)
	}

	participants, err := s.conversations.Participants(ctx, conv.ID)
	if err != nil {
		return nil, nil, apperrors.Internal("failed to load participants", err)
	}
	return conv, participants, nil
}

func payloadFor(msg *data.Message) MessagePayload {
	return MessagePayload{
		ID:               msg.ID.Hex(),
		ConversationID:   msg.ConversationID.Hex(),
		SenderID:         msg.SenderID,
		Content:          msg.Content,
		Type:             msg.Type,
		ReplyToMessageID: msg.ReplyToMessageID,
		CreatedAt:        msg.CreatedAt,
	}
}
