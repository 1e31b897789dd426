package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
)

// envelope is the uniform reply shape.
type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondOK(msg *nats.Msg, result any) {
	payload, err := json.Marshal(envelope{OK: true, Data: result})
	if err != nil {
		respondError(msg, apperrors.Internal("failed to encode reply", err))
		return
	}
	_ = msg.Respond(payload)
}

func respondError(msg *nats.Msg, err error) {
	payload, _ := json.Marshal(errorEnvelope(err))
	_ = msg.Respond(payload)
}

func errorEnvelope(err error) envelope {
	body := errorBody{Code: string(apperrors.CodeUnknown), Message: "unexpected error"}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Code = string(appErr.Code)
		body.Message = appErr.Message
	}
	// Internal causes are logged server-side; the client sees the code only.
	if body.Code == string(apperrors.CodeInternal) {
		body.Message = "internal error"
	}
	return envelope{OK: false, Error: &body}
}

// unmarshalRequest tolerates an empty payload and maps malformed JSON onto
// the invalid-argument code.
func unmarshalRequest(payload []byte, into any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "malformed request body", err)
	}
	return nil
}

// View types: the JSON shapes clients receive. Hex ids, camelCase keys.

type ackView struct {
	OK bool `json:"ok"`
}

type countView struct {
	Count int64 `json:"count"`
}

type listView struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}

type connectionRow struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	ConnectedUserID string     `json:"connectedUserId"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	RespondedAt     *time.Time `json:"respondedAt,omitempty"`
}

func connectionView(conn *data.Connection) connectionRow {
	row := connectionRow{
		ID:              conn.ID.Hex(),
		UserID:          conn.UserID,
		ConnectedUserID: conn.ConnectedUserID,
		Status:          string(conn.Status),
		CreatedAt:       conn.CreatedAt,
	}
	if !conn.RespondedAt.IsZero() {
		t := conn.RespondedAt
		row.RespondedAt = &t
	}
	return row
}

func connectionViews(rows []*data.Connection) []connectionRow {
	views := make([]connectionRow, 0, len(rows))
	for _, row := range rows {
		views = append(views, connectionView(row))
	}
	return views
}

type presenceRow struct {
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func presenceView(row *data.Presence) presenceRow {
	return presenceRow{
		UserID:     row.UserID,
		Status:     string(row.Status),
		LastSeenAt: row.LastSeenAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

type conversationRow struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
	CreatedAt     time.Time `json:"createdAt"`
}

func conversationView(conv *data.Conversation) conversationRow {
	return conversationRow{
		ID:            conv.ID.Hex(),
		Type:          string(conv.Type),
		Name:          conv.Name,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}
}

type conversationSummaryView struct {
	Conversation conversationRow `json:"conversation"`
	LastMessage  *messageRow     `json:"lastMessage,omitempty"`
	UnreadCount  int64           `json:"unreadCount"`
}

type messageRow struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	SenderID         string    `json:"senderId"`
	Content          string    `json:"content"`
	Type             string    `json:"type"`
	ReplyToMessageID string    `json:"replyToMessageId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func messageView(msg *data.Message) messageRow {
	return messageRow{
		ID:               msg.ID.Hex(),
		ConversationID:   msg.ConversationID.Hex(),
		SenderID:         msg.SenderID,
		Content:          msg.Content,
		Type:             msg.Type,
		ReplyToMessageID: msg.ReplyToMessageID,
		CreatedAt:        msg.CreatedAt,
	}
}

func messageViews(msgs []*data.Message) []messageRow {
	views := make([]messageRow, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView(msg))
	}
	return views
}
