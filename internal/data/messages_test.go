package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/RovierrHQ/Rovierr-sub004/internal/db"
)

func messagesStore(t *testing.T) (*MessagesStore, context.Context) {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri, "rovierr_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = c.MessagesCollection().Drop(context.Background())
		_ = c.Close(context.Background())
	})

	_ = c.MessagesCollection().Drop(ctx)
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	return NewMessagesStore(c.MessagesCollection()), ctx
}

func seedMessages(t *testing.T, store *MessagesStore, ctx context.Context, convID bson.ObjectID, n int) []*Message {
	t.Helper()
	msgs := make([]*Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := store.Insert(ctx, convID, "alice", fmt.Sprintf("message %d", i), "text", "")
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		msgs = append(msgs, msg)
		// created_at drives ordering and pagination, so keep it distinct.
		time.Sleep(2 * time.Millisecond)
	}
	return msgs
}

func TestMessagesHistoryPagination(t *testing.T) {
	store, ctx := messagesStore(t)
	convID := bson.NewObjectID()
	msgs := seedMessages(t, store, ctx, convID, 5)

	// Latest page, chronological order.
	page, err := store.History(ctx, convID, 3, "")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page))
	}
	for i, want := range msgs[2:] {
		if page[i].ID != want.ID {
			t.Fatalf("page[%d]: expected %s, got %s", i, want.ID.Hex(), page[i].ID.Hex())
		}
	}

	// Page before the oldest of the previous one.
	page, err = store.History(ctx, convID, 3, page[0].ID.Hex())
	if err != nil {
		t.Fatalf("History with cursor failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	if page[0].ID != msgs[0].ID || page[1].ID != msgs[1].ID {
		t.Fatalf("expected oldest two messages, got %s %s", page[0].ID.Hex(), page[1].ID.Hex())
	}

	if _, err := store.History(ctx, convID, 3, bson.NewObjectID().Hex()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown cursor, got %v", err)
	}
}

func TestMessagesLastAndUnread(t *testing.T) {
	store, ctx := messagesStore(t)
	convID := bson.NewObjectID()

	if _, err := store.LastMessage(ctx, convID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty conversation, got %v", err)
	}

	msgs := seedMessages(t, store, ctx, convID, 3)
	if _, err := store.Insert(ctx, convID, "bob", "hi back", "text", ""); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	last, err := store.LastMessage(ctx, convID)
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if last.SenderID != "bob" {
		t.Fatalf("expected bob's message to be last, got %s", last.SenderID)
	}

	// bob never read; alice's 3 messages count, his own does not.
	n, err := store.CountUnread(ctx, convID, "bob", time.Time{})
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 unread, got %d", n)
	}

	// Cursor after the second message leaves one unread.
	n, err = store.CountUnread(ctx, convID, "bob", msgs[1].CreatedAt)
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
}

func TestMessagesSearch(t *testing.T) {
	store, ctx := messagesStore(t)
	mine := bson.NewObjectID()
	other := bson.NewObjectID()

	if _, err := store.Insert(ctx, mine, "alice", "Study group tonight?", "text", ""); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.Insert(ctx, mine, "bob", "no group for me", "text", ""); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.Insert(ctx, other, "carol", "group chat elsewhere", "text", ""); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Case-insensitive, scoped to the given conversations.
	found, err := store.Search(ctx, []bson.ObjectID{mine}, "GROUP", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(found))
	}
	for _, msg := range found {
		if msg.ConversationID != mine {
			t.Fatalf("hit from foreign conversation %s", msg.ConversationID.Hex())
		}
	}

	// Regex metacharacters in the query are literal.
	found, err = store.Search(ctx, []bson.ObjectID{mine}, "tonight?", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 hit for literal query, got %d", len(found))
	}

	// Empty inputs short-circuit.
	if found, err := store.Search(ctx, nil, "group", 10); err != nil || found != nil {
		t.Fatalf("expected nil result for empty scope, got %v %v", found, err)
	}
}
