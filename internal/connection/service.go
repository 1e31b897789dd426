// Package connection owns the connection-request lifecycle between users.
// It is the single source of truth for whether two users may contact each
// other.
package connection

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

// PairStatus describes the relationship between two users from one side's
// point of view.
type PairStatus string

const (
	StatusNotConnected    PairStatus = "not_connected"
	StatusPendingSent     PairStatus = "pending_sent"
	StatusPendingReceived PairStatus = "pending_received"
	StatusConnected       PairStatus = "connected"
)

// Store is the persistence surface the service needs. *data.ConnectionsStore
// satisfies it; tests substitute a fake.
type Store interface {
	Insert(ctx context.Context, requesterID, targetID string) (*data.Connection, error)
	FindByID(ctx context.Context, id string) (*data.Connection, error)
	FindByPair(ctx context.Context, a, b string) (*data.Connection, error)
	SetStatus(ctx context.Context, id bson.ObjectID, status data.ConnectionStatus, respondedAt time.Time) error
	Delete(ctx context.Context, id bson.ObjectID) error
	ListPending(ctx context.Context, userID string, received bool, limit, offset int64) ([]*data.Connection, int64, error)
	ListAccepted(ctx context.Context, userID string, limit, offset int64) ([]*data.Connection, int64, error)
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service implements the connection state machine:
// none -> (send) -> pending -> (accept) -> connected, with reject and remove
// deleting the row outright. There is no blocked or rejected state.
type Service struct {
	store Store
	locks *pairLock
	log   *logger.Logger
}

// NewService returns a connection Service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store: store,
		locks: newPairLock(),
		log:   log,
	}
}

// Send creates a pending request from requester to target.
//
// The existence check and the insert run under the per-pair lock, and the
// insert is additionally guarded by the unique pair_key index. When two users
// send to each other at the same instant, exactly one row results; the loser
// re-reads the winning row and reports PENDING_REQUEST or ALREADY_CONNECTED,
// never a duplicate.
func (s *Service) Send(ctx context.Context, requesterID, targetID string) (*data.Connection, error) {
	if requesterID == "" || targetID == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	if requesterID == targetID {
		return nil, apperrors.ErrSelfConnection
	}

	unlock := s.locks.lock(data.PairKey(requesterID, targetID))
	defer unlock()

	existing, err := s.store.FindByPair(ctx, requesterID, targetID)
	if err == nil {
		return nil, pairConflict(existing)
	}
	if !errors.Is(err, data.ErrNotFound) {
		return nil, apperrors.Internal("failed to look up connection", err)
	}

	conn, err := s.store.Insert(ctx, requesterID, targetID)
	if err != nil {
		if errors.Is(err, data.ErrDuplicatePair) {
			// Lost a cross-process race; report the winner's state.
			winner, ferr := s.store.FindByPair(ctx, requesterID, targetID)
			if ferr != nil {
				return nil, apperrors.Internal("failed to resolve conflicting connection", ferr)
			}
			return nil, pairConflict(winner)
		}
		return nil, apperrors.Internal("failed to create connection request", err)
	}

	s.log.Info("connection request sent", "requester", requesterID, "target", targetID)
	return conn, nil
}

func pairConflict(row *data.Connection) error {
	if row.Status == data.ConnectionAccepted {
		return apperrors.ErrAlreadyConnected
	}
	return apperrors.ErrPendingRequest
}

// Accept transitions a pending request to accepted. Only the recipient of
// the request may accept it.
func (s *Service) Accept(ctx context.Context, actorID, connectionID string) (*data.Connection, error) {
	conn, unlock, err := s.lockRow(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if actorID != conn.ConnectedUserID {
		return nil, apperrors.ErrForbidden
	}
	if conn.Status == data.ConnectionAccepted {
		return nil, apperrors.ErrAlreadyConnected
	}

	now := time.Now()
	if err := s.store.SetStatus(ctx, conn.ID, data.ConnectionAccepted, now); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Internal("failed to accept connection", err)
	}

	conn.Status = data.ConnectionAccepted
	conn.RespondedAt = now
	s.log.Info("connection accepted", "user", conn.UserID, "peer", conn.ConnectedUserID)
	return conn, nil
}

// Reject deletes a pending request. Same authorization as Accept.
func (s *Service) Reject(ctx context.Context, actorID, connectionID string) error {
	conn, unlock, err := s.lockRow(ctx, connectionID)
	if err != nil {
		return err
	}
	defer unlock()

	if actorID != conn.ConnectedUserID {
		return apperrors.ErrForbidden
	}

	if err := s.store.Delete(ctx, conn.ID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.Internal("failed to reject connection", err)
	}

	s.log.Info("connection rejected", "user", conn.UserID, "peer", conn.ConnectedUserID)
	return nil
}

// Remove deletes a connection row. Either party may remove; the row is
// deleted outright, so a fresh Send is allowed again afterwards.
func (s *Service) Remove(ctx context.Context, actorID, connectionID string) error {
	conn, unlock, err := s.lockRow(ctx, connectionID)
	if err != nil {
		return err
	}
	defer unlock()

	if actorID != conn.UserID && actorID != conn.ConnectedUserID {
		return apperrors.ErrForbidden
	}

	if err := s.store.Delete(ctx, conn.ID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.Internal("failed to remove connection", err)
	}

	s.log.Info("connection removed", "actor", actorID, "user", conn.UserID, "peer", conn.ConnectedUserID)
	return nil
}

// lockRow looks up the row, takes the pair lock, then re-reads so the caller
// operates on the state that holds under the lock.
func (s *Service) lockRow(ctx context.Context, connectionID string) (*data.Connection, func(), error) {
	conn, err := s.store.FindByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, apperrors.Internal("failed to look up connection", err)
	}

	unlock := s.locks.lock(conn.PairKey)

	conn, err = s.store.FindByID(ctx, connectionID)
	if err != nil {
		unlock()
		if errors.Is(err, data.ErrNotFound) {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, apperrors.Internal("failed to look up connection", err)
	}
	return conn, unlock, nil
}

// StatusBetween derives the relationship between two users from the (at most
// one) pair row, as seen from userID's side.
func (s *Service) StatusBetween(ctx context.Context, userID, otherID string) (PairStatus, error) {
	if userID == otherID {
		return StatusNotConnected, nil
	}

	conn, err := s.store.FindByPair(ctx, userID, otherID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return StatusNotConnected, nil
		}
		return "", apperrors.Internal("failed to look up connection", err)
	}

	if conn.Status == data.ConnectionAccepted {
		return StatusConnected, nil
	}
	if conn.UserID == userID {
		return StatusPendingSent, nil
	}
	return StatusPendingReceived, nil
}

// ListPending returns the user's pending requests, newest first.
// received selects requests awaiting the user's response versus sent ones.
func (s *Service) ListPending(ctx context.Context, userID string, received bool, limit, offset int64) ([]*data.Connection, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, total, err := s.store.ListPending(ctx, userID, received, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list pending requests", err)
	}
	return rows, total, nil
}

// ListConnections returns the user's accepted connections, most recently
// accepted first.
func (s *Service) ListConnections(ctx context.Context, userID string, limit, offset int64) ([]*data.Connection, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, total, err := s.store.ListAccepted(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list connections", err)
	}
	return rows, total, nil
}

// ExpirePending deletes pending requests older than ttl and returns how many
// were swept.
func (s *Service) ExpirePending(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.store.DeletePendingBefore(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, apperrors.Internal("failed to expire pending requests", err)
	}
	if n > 0 {
		s.log.Info("expired pending connection requests", "count", n)
	}
	return n, nil
}
