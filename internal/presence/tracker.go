// Package presence tracks per-user online state and typing indicators.
package presence

import (
	"context"
	"time"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

// Store is the presence persistence surface.
type Store interface {
	Upsert(ctx context.Context, userID string, status data.PresenceStatus, now time.Time) (*data.Presence, error)
	FindByUsers(ctx context.Context, userIDs []string) ([]*data.Presence, error)
}

// PeerSource resolves a user's accepted connection peers.
type PeerSource interface {
	AcceptedPeerIDs(ctx context.Context, userID string) ([]string, error)
}

// Broadcaster pushes presence changes to connected peers.
type Broadcaster interface {
	PresenceChanged(ctx context.Context, userID, status string, lastSeenAt time.Time) error
}

// PeerPresence is one connected peer's state as returned to clients. Peers
// with no presence row yet default to offline.
type PeerPresence struct {
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"lastSeenAt,omitzero"`
}

// Tracker owns per-user presence rows and notifies connected peers when a
// user's status changes.
type Tracker struct {
	store     Store
	peers     PeerSource
	broadcast Broadcaster
	log       *logger.Logger
}

// NewTracker returns a presence Tracker.
func NewTracker(store Store, peers PeerSource, broadcast Broadcaster, log *logger.Logger) *Tracker {
	return &Tracker{
		store:     store,
		peers:     peers,
		broadcast: broadcast,
		log:       log,
	}
}

// UpdateStatus persists the user's new status and broadcasts it to their
// connected peers. The persisted row is the source of truth: the broadcast
// carries its last_seen_at, which only moves on the transition to offline.
// A broadcast failure is logged but never fails the update.
func (t *Tracker) UpdateStatus(ctx context.Context, userID string, status data.PresenceStatus) (*data.Presence, error) {
	if userID == "" || !data.ValidPresenceStatus(status) {
		return nil, apperrors.ErrInvalidArgument
	}

	row, err := t.store.Upsert(ctx, userID, status, time.Now())
	if err != nil {
		return nil, apperrors.Internal("failed to update presence", err)
	}

	if err := t.broadcast.PresenceChanged(ctx, userID, string(row.Status), row.LastSeenAt); err != nil {
		t.log.Warn("presence broadcast incomplete", "user", userID, "err", err)
	}
	return row, nil
}

// GetConnectionsStatus returns the presence of every accepted peer of the
// user. A peer appears exactly once regardless of which direction the
// accepted row was stored in; peers without a presence row report offline.
func (t *Tracker) GetConnectionsStatus(ctx context.Context, userID string) ([]PeerPresence, error) {
	peerIDs, err := t.peers.AcceptedPeerIDs(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to resolve peers", err)
	}
	if len(peerIDs) == 0 {
		return []PeerPresence{}, nil
	}

	rows, err := t.store.FindByUsers(ctx, peerIDs)
	if err != nil {
		return nil, apperrors.Internal("failed to load presence", err)
	}

	byUser := make(map[string]*data.Presence, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}

	result := make([]PeerPresence, 0, len(peerIDs))
	for _, peerID := range peerIDs {
		if row, ok := byUser[peerID]; ok {
			result = append(result, PeerPresence{
				UserID:     row.UserID,
				Status:     string(row.Status),
				LastSeenAt: row.LastSeenAt,
			})
			continue
		}
		result = append(result, PeerPresence{
			UserID: peerID,
			Status: string(data.PresenceOffline),
		})
	}
	return result, nil
}

// HandleUserConnect marks a user online when the transport reports a new
// connection.
func (t *Tracker) HandleUserConnect(ctx context.Context, userID string) error {
	_, err := t.UpdateStatus(ctx, userID, data.PresenceOnline)
	return err
}

// HandleUserDisconnect marks a user offline when their transport connection
// drops, stamping last_seen_at via the store's upsert rule.
func (t *Tracker) HandleUserDisconnect(ctx context.Context, userID string) error {
	_, err := t.UpdateStatus(ctx, userID, data.PresenceOffline)
	return err
}
