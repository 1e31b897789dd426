// Package rpc exposes the service operations over NATS request-reply.
package rpc

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RovierrHQ/Rovierr-sub004/internal/auth"
	"github.com/RovierrHQ/Rovierr-sub004/internal/chat"
	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/internal/middleware"
	"github.com/RovierrHQ/Rovierr-sub004/internal/presence"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

// queueGroup shares each subject across replicas; exactly one instance
// answers a given request.
const queueGroup = "core-rpc"

const handlerTimeout = 10 * time.Second

// ConnectionService is the connection operations surface.
type ConnectionService interface {
	Send(ctx context.Context, requesterID, targetID string) (*data.Connection, error)
	Accept(ctx context.Context, actorID, connectionID string) (*data.Connection, error)
	Reject(ctx context.Context, actorID, connectionID string) error
	Remove(ctx context.Context, actorID, connectionID string) error
	ListPending(ctx context.Context, userID string, received bool, limit, offset int64) ([]*data.Connection, int64, error)
	ListConnections(ctx context.Context, userID string, limit, offset int64) ([]*data.Connection, int64, error)
}

// PresenceService is the presence operations surface.
type PresenceService interface {
	UpdateStatus(ctx context.Context, userID string, status data.PresenceStatus) (*data.Presence, error)
	GetConnectionsStatus(ctx context.Context, userID string) ([]presence.PeerPresence, error)
	HandleUserConnect(ctx context.Context, userID string) error
	HandleUserDisconnect(ctx context.Context, userID string) error
}

// TypingService feeds the typing debounce.
type TypingService interface {
	Typing(ctx context.Context, userID, conversationID string, isTyping bool) error
}

// ChatService is the conversation and message operations surface.
type ChatService interface {
	GetOrCreateConversation(ctx context.Context, userID, targetID string) (*data.Conversation, error)
	SendMessage(ctx context.Context, userID, conversationID, content, replyTo string) (*data.Message, error)
	GetMessages(ctx context.Context, userID, conversationID string, limit int64, beforeID string) ([]*data.Message, error)
	ListConversations(ctx context.Context, userID string, limit, offset int64) ([]*chat.ConversationSummary, int64, error)
	MarkAsRead(ctx context.Context, userID, conversationID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
	SearchMessages(ctx context.Context, userID, query string, limit int64) ([]*data.Message, error)
}

// Server wires the services onto NATS subjects.
type Server struct {
	nc          *nats.Conn
	jwt         *auth.JWTManager
	minter      *auth.TokenMinter
	connections ConnectionService
	presence    PresenceService
	typing      TypingService
	chat        ChatService
	limiter     *middleware.LimiterStore
	log         *logger.Logger

	subs []*nats.Subscription
}

// Config bundles the Server's collaborators.
type Config struct {
	Conn        *nats.Conn
	JWT         *auth.JWTManager
	TokenMinter *auth.TokenMinter
	Connections ConnectionService
	Presence    PresenceService
	Typing      TypingService
	Chat        ChatService
	Limiter     *middleware.LimiterStore
	Logger      *logger.Logger
}

// NewServer returns an unstarted Server.
func NewServer(cfg Config) *Server {
	return &Server{
		nc:          cfg.Conn,
		jwt:         cfg.JWT,
		minter:      cfg.TokenMinter,
		connections: cfg.Connections,
		presence:    cfg.Presence,
		typing:      cfg.Typing,
		chat:        cfg.Chat,
		limiter:     cfg.Limiter,
		log:         cfg.Logger,
	}
}

// subjects maps every subject the server answers onto its NATS handler.
// All of them join the queue group. Operations are request-reply, so
// exactly one instance may answer; lifecycle events write presence to the
// database and broadcast from there, so handling each event once is both
// sufficient and what keeps N replicas from emitting N duplicate
// broadcasts.
func (s *Server) subjects() map[string]nats.MsgHandler {
	ops := map[string]handlerFunc{
		"rpc.connection.send":            s.handleConnectionSend,
		"rpc.connection.accept":          s.handleConnectionAccept,
		"rpc.connection.reject":          s.handleConnectionReject,
		"rpc.connection.remove":          s.handleConnectionRemove,
		"rpc.connection.listPending":     s.handleConnectionListPending,
		"rpc.connection.listConnections": s.handleConnectionList,

		"rpc.presence.updateStatus":         s.handlePresenceUpdateStatus,
		"rpc.presence.getConnectionsStatus": s.handlePresenceGetConnections,
		"rpc.presence.connectionToken":      s.handleConnectionToken,

		"rpc.chat.getOrCreateConversation": s.handleChatGetOrCreate,
		"rpc.chat.sendMessage":             s.handleChatSendMessage,
		"rpc.chat.getMessages":             s.handleChatGetMessages,
		"rpc.chat.listConversations":       s.handleChatListConversations,
		"rpc.chat.markAsRead":              s.handleChatMarkAsRead,
		"rpc.chat.unreadCount":             s.handleChatUnreadCount,
		"rpc.chat.searchMessages":          s.handleChatSearchMessages,
		"rpc.chat.typing":                  s.handleChatTyping,
	}

	handlers := make(map[string]nats.MsgHandler, len(ops)+2)
	for subject, handler := range ops {
		handlers[subject] = s.wrap(subject, handler)
	}
	handlers["transport.connected"] = s.lifecycleHandler("transport.connected", s.presence.HandleUserConnect)
	handlers["transport.disconnected"] = s.lifecycleHandler("transport.disconnected", s.presence.HandleUserDisconnect)
	return handlers
}

// Start subscribes every subject in the shared queue group.
func (s *Server) Start() error {
	for subject, handler := range s.subjects() {
		sub, err := s.nc.QueueSubscribe(subject, queueGroup, handler)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}

	s.log.Info("rpc server listening", "subjects", len(s.subs), "queue", queueGroup)
	return nil
}

// Stop unsubscribes everything. Pending handlers finish on their own.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}
