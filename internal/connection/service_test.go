package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/apperrors"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

// fakeStore is an in-memory Store. It enforces the unique pair_key
// constraint the way the real index does, so race tests exercise the same
// duplicate-insert path.
type fakeStore struct {
	mu     sync.Mutex
	byID   map[string]*data.Connection
	byPair map[string]*data.Connection
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:   map[string]*data.Connection{},
		byPair: map[string]*data.Connection{},
	}
}

func (f *fakeStore) Insert(_ context.Context, requesterID, targetID string) (*data.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := data.PairKey(requesterID, targetID)
	if _, ok := f.byPair[key]; ok {
		return nil, data.ErrDuplicatePair
	}
	conn := &data.Connection{
		ID:              bson.NewObjectID(),
		UserID:          requesterID,
		ConnectedUserID: targetID,
		PairKey:         key,
		Status:          data.ConnectionPending,
		CreatedAt:       time.Now(),
	}
	f.byID[conn.ID.Hex()] = conn
	f.byPair[key] = conn
	return conn, nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*data.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.byID[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (f *fakeStore) FindByPair(_ context.Context, a, b string) (*data.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.byPair[data.PairKey(a, b)]
	if !ok {
		return nil, data.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id bson.ObjectID, status data.ConnectionStatus, respondedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.byID[id.Hex()]
	if !ok {
		return data.ErrNotFound
	}
	conn.Status = status
	conn.RespondedAt = respondedAt
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.byID[id.Hex()]
	if !ok {
		return data.ErrNotFound
	}
	delete(f.byID, id.Hex())
	delete(f.byPair, conn.PairKey)
	return nil
}

func (f *fakeStore) ListPending(_ context.Context, userID string, received bool, limit, offset int64) ([]*data.Connection, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*data.Connection
	for _, conn := range f.byID {
		if conn.Status != data.ConnectionPending {
			continue
		}
		if received && conn.ConnectedUserID == userID || !received && conn.UserID == userID {
			copied := *conn
			rows = append(rows, &copied)
		}
	}
	return rows, int64(len(rows)), nil
}

func (f *fakeStore) ListAccepted(_ context.Context, userID string, limit, offset int64) ([]*data.Connection, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*data.Connection
	for _, conn := range f.byID {
		if conn.Status == data.ConnectionAccepted && (conn.UserID == userID || conn.ConnectedUserID == userID) {
			copied := *conn
			rows = append(rows, &copied)
		}
	}
	return rows, int64(len(rows)), nil
}

func (f *fakeStore) DeletePendingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, conn := range f.byID {
		if conn.Status == data.ConnectionPending && conn.CreatedAt.Before(cutoff) {
			delete(f.byID, id)
			delete(f.byPair, conn.PairKey)
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, logger.Nop()), store
}

func TestSendCreatesPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, data.ConnectionPending, conn.Status)
	assert.Equal(t, "alice", conn.UserID)
	assert.Equal(t, "bob", conn.ConnectedUserID)

	status, err := svc.StatusBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingSent, status)

	status, err = svc.StatusBetween(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReceived, status)
}

func TestSendSelf(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Send(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, apperrors.ErrSelfConnection)
}

func TestSendDuplicateEitherDirection(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.Send(ctx, "alice", "bob")
	assert.ErrorIs(t, err, apperrors.ErrPendingRequest)

	_, err = svc.Send(ctx, "bob", "alice")
	assert.ErrorIs(t, err, apperrors.ErrPendingRequest)
}

func TestSendToConnectedPeer(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "bob", conn.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Send(ctx, "alice", "bob")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyConnected)
}

func TestAcceptAuthorization(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	// The requester cannot accept their own request.
	_, err = svc.Accept(ctx, "alice", conn.ID.Hex())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Neither can a third party.
	_, err = svc.Accept(ctx, "carol", conn.ID.Hex())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	accepted, err := svc.Accept(ctx, "bob", conn.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, data.ConnectionAccepted, accepted.Status)
	assert.False(t, accepted.RespondedAt.IsZero())

	status, err := svc.StatusBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, status)
}

func TestAcceptMissing(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Accept(context.Background(), "bob", bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRejectDeletesRow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Reject(ctx, "alice", conn.ID.Hex()), apperrors.ErrForbidden)
	require.NoError(t, svc.Reject(ctx, "bob", conn.ID.Hex()))

	status, err := svc.StatusBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusNotConnected, status)

	// No residual lockout; a fresh request goes through.
	_, err = svc.Send(ctx, "alice", "bob")
	assert.NoError(t, err)
}

func TestRemoveByEitherParty(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "bob", conn.ID.Hex())
	require.NoError(t, err)

	require.ErrorIs(t, svc.Remove(ctx, "carol", conn.ID.Hex()), apperrors.ErrForbidden)
	require.NoError(t, svc.Remove(ctx, "alice", conn.ID.Hex()))
	require.ErrorIs(t, svc.Remove(ctx, "alice", conn.ID.Hex()), apperrors.ErrNotFound)

	status, err := svc.StatusBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusNotConnected, status)

	_, err = svc.Send(ctx, "bob", "alice")
	assert.NoError(t, err)
}

func TestRoundTripLeavesNoRows(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "bob", conn.ID.Hex())
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "bob", conn.ID.Hex()))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.byID)
	assert.Empty(t, store.byPair)
}

func TestConcurrentMutualSend(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Send(ctx, "alice", "bob")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Send(ctx, "bob", "alice")
	}()
	wg.Wait()

	// Exactly one row; the loser gets a deterministic conflict.
	store.mu.Lock()
	rowCount := len(store.byPair)
	store.mu.Unlock()
	require.Equal(t, 1, rowCount)

	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case apperrors.CodeOf(err) == apperrors.CodePendingRequest:
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)
}

func TestListPendingDirections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "carol", "bob")
	require.NoError(t, err)

	received, total, err := svc.ListPending(ctx, "bob", true, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, received, 2)

	sent, total, err := svc.ListPending(ctx, "bob", false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, sent)
}

func TestExpirePending(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	conn, err := svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	// Backdate the request past the TTL.
	store.mu.Lock()
	store.byID[conn.ID.Hex()].CreatedAt = time.Now().Add(-91 * 24 * time.Hour)
	store.mu.Unlock()

	n, err := svc.ExpirePending(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	status, err := svc.StatusBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusNotConnected, status)
}
