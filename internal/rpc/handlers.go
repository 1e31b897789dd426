package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
)

type handlerFunc func(ctx context.Context, userID string, payload []byte) (any, error)

// wrap authenticates the request, runs the handler under a deadline and
// replies with the uniform envelope. Every request gets a correlation id for
// log stitching.
func (s *Server) wrap(subject string, h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		requestID := uuid.NewString()

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		userID, err := s.authenticate(msg)
		if err != nil {
			s.log.Warn("rpc auth failed", "subject", subject, "request_id", requestID, "err", err)
			respondError(msg, err)
			return
		}

		result, err := h(ctx, userID, msg.Data)
		if err != nil {
			code := apperrors.CodeOf(err)
			if code == apperrors.CodeInternal || code == apperrors.CodeUnknown {
				s.log.Error("rpc handler failed", "subject", subject, "request_id", requestID, "user", userID, "err", err)
			} else {
				s.log.Debug("rpc request rejected", "subject", subject, "request_id", requestID, "user", userID, "code", code)
			}
			respondError(msg, err)
			return
		}

		respondOK(msg, result)
		s.log.Debug("rpc handled", "subject", subject, "request_id", requestID, "user", userID)
	}
}

// authenticate extracts and verifies the bearer session token from the
// request headers.
func (s *Server) authenticate(msg *nats.Msg) (string, error) {
	header := msg.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.ErrUnauthenticated
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", apperrors.ErrUnauthenticated
	}

	claims, err := s.jwt.VerifyToken(token)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid session token", err)
	}
	return claims.UserID, nil
}

// checkRate guards connection mutations against per-user bursts.
func (s *Server) checkRate(userID string) error {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return apperrors.ErrRateLimited
	}
	return nil
}

// lifecycleHandler adapts a presence hook onto a transport lifecycle
// subject. These events come from the transport itself, not from clients,
// so there is no token to verify.
func (s *Server) lifecycleHandler(subject string, hook func(ctx context.Context, userID string) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var event struct {
			UserID string `json:"userId"`
		}
		if err := unmarshalRequest(msg.Data, &event); err != nil || event.UserID == "" {
			s.log.Warn("invalid lifecycle event", "subject", subject, "err", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := hook(ctx, event.UserID); err != nil {
			s.log.Error("lifecycle hook failed", "subject", subject, "user", event.UserID, "err", err)
		}
	}
}

// Connection operations

func (s *Server) handleConnectionSend(ctx context.Context, userID string, payload []byte) (any, error) {
	if err := s.checkRate(userID); err != nil {
		return nil, err
	}
	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.connections.Send(ctx, userID, req.TargetUserID)
	if err != nil {
		return nil, err
	}
	return connectionView(conn), nil
}

func (s *Server) handleConnectionAccept(ctx context.Context, userID string, payload []byte) (any, error) {
	if err := s.checkRate(userID); err != nil {
		return nil, err
	}
	var req struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.connections.Accept(ctx, userID, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	return connectionView(conn), nil
}

func (s *Server) handleConnectionReject(ctx context.Context, userID string, payload []byte) (any, error) {
	if err := s.checkRate(userID); err != nil {
		return nil, err
	}
	var req struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	if err := s.connections.Reject(ctx, userID, req.ConnectionID); err != nil {
		return nil, err
	}
	return ackView{OK: true}, nil
}

func (s *Server) handleConnectionRemove(ctx context.Context, userID string, payload []byte) (any, error) {
	if err := s.checkRate(userID); err != nil {
		return nil, err
	}
	var req struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	if err := s.connections.Remove(ctx, userID, req.ConnectionID); err != nil {
		return nil, err
	}
	return ackView{OK: true}, nil
}

func (s *Server) handleConnectionListPending(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		Direction string `json:"direction"`
		Limit     int64  `json:"limit"`
		Offset    int64  `json:"offset"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	// Incoming requests unless the caller asks for ones they sent.
	rows, total, err := s.connections.ListPending(ctx, userID, req.Direction != "sent", req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return listView{Items: connectionViews(rows), Total: total}, nil
}

func (s *Server) handleConnectionList(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		Limit  int64 `json:"limit"`
		Offset int64 `json:"offset"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	rows, total, err := s.connections.ListConnections(ctx, userID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return listView{Items: connectionViews(rows), Total: total}, nil
}

// Presence operations

func (s *Server) handlePresenceUpdateStatus(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		Status string `json:"status"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	row, err := s.presence.UpdateStatus(ctx, userID, data.PresenceStatus(req.Status))
	if err != nil {
		return nil, err
	}
	return presenceView(row), nil
}

func (s *Server) handlePresenceGetConnections(ctx context.Context, userID string, _ []byte) (any, error) {
	peers, err := s.presence.GetConnectionsStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	return peers, nil
}

func (s *Server) handleConnectionToken(_ context.Context, userID string, _ []byte) (any, error) {
	token, expiresAt, err := s.minter.ConnectionToken(userID)
	if err != nil {
		return nil, apperrors.Internal("failed to mint connection token", err)
	}
	return tokenView{Token: token, ExpiresAt: expiresAt}, nil
}

// Chat operations

func (s *Server) handleChatGetOrCreate(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	conv, err := s.chat.GetOrCreateConversation(ctx, userID, req.TargetUserID)
	if err != nil {
		return nil, err
	}
	return conversationView(conv), nil
}

func (s *Server) handleChatSendMessage(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		ConversationID   string `json:"conversationId"`
		Content          string `json:"content"`
		ReplyToMessageID string `json:"replyToMessageId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	msg, err := s.chat.SendMessage(ctx, userID, req.ConversationID, req.Content, req.ReplyToMessageID)
	if err != nil {
		return nil, err
	}
	return messageView(msg), nil
}

func (s *Server) handleChatGetMessages(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		ConversationID  string `json:"conversationId"`
		Limit           int64  `json:"limit"`
		BeforeMessageID string `json:"beforeMessageId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	msgs, err := s.chat.GetMessages(ctx, userID, req.ConversationID, req.Limit, req.BeforeMessageID)
	if err != nil {
		return nil, err
	}
	return messageViews(msgs), nil
}

func (s *Server) handleChatListConversations(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		Limit  int64 `json:"limit"`
		Offset int64 `json:"offset"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	summaries, total, err := s.chat.ListConversations(ctx, userID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	items := make([]conversationSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		view := conversationSummaryView{
			Conversation: conversationView(summary.Conversation),
			UnreadCount:  summary.UnreadCount,
		}
		if summary.LastMessage != nil {
			last := messageView(summary.LastMessage)
			view.LastMessage = &last
		}
		items = append(items, view)
	}
	return listView{Items: items, Total: total}, nil
}

func (s *Server) handleChatMarkAsRead(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	if err := s.chat.MarkAsRead(ctx, userID, req.ConversationID); err != nil {
		return nil, err
	}
	return ackView{OK: true}, nil
}

func (s *Server) handleChatUnreadCount(ctx context.Context, userID string, _ []byte) (any, error) {
	n, err := s.chat.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return countView{Count: n}, nil
}

func (s *Server) handleChatSearchMessages(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		Query string `json:"query"`
		Limit int64  `json:"limit"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	msgs, err := s.chat.SearchMessages(ctx, userID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	return messageViews(msgs), nil
}

func (s *Server) handleChatTyping(ctx context.Context, userID string, payload []byte) (any, error) {
	var req struct {
		ConversationID string `json:"conversationId"`
		IsTyping       bool   `json:"isTyping"`
	}
	if err := unmarshalRequest(payload, &req); err != nil {
		return nil, err
	}
	if req.ConversationID == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	if err := s.typing.Typing(ctx, userID, req.ConversationID, req.IsTyping); err != nil {
		return nil, err
	}
	return ackView{OK: true}, nil
}

type tokenView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
