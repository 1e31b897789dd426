package presence

import (
	"context"
	"sync"
	"time"

	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

// TypingBroadcaster pushes typing indicators to a conversation channel.
type TypingBroadcaster interface {
	Typing(ctx context.Context, conversationID, userID string, isTyping bool) error
}

// TypingCoordinator debounces typing indicators. Each (user, conversation)
// pair carries at most one pending timer; while the user keeps typing the
// timer is reset, and when it fires a synthetic stopped-typing event is
// published. State is process-local and lost on restart, which is acceptable
// for presentation-layer ephemera.
type TypingCoordinator struct {
	mu        sync.Mutex
	timers    map[string]*time.Timer
	window    time.Duration
	broadcast TypingBroadcaster
	log       *logger.Logger
}

// NewTypingCoordinator returns a coordinator with the given debounce window.
func NewTypingCoordinator(window time.Duration, broadcast TypingBroadcaster, log *logger.Logger) *TypingCoordinator {
	return &TypingCoordinator{
		timers:    make(map[string]*time.Timer),
		window:    window,
		broadcast: broadcast,
		log:       log,
	}
}

func typingKey(userID, conversationID string) string {
	return userID + "|" + conversationID
}

// Typing publishes the indicator immediately. A true indicator arms (or
// resets) the auto-stop timer; a false one cancels it, so no synthetic stop
// follows an explicit stop.
func (c *TypingCoordinator) Typing(ctx context.Context, userID, conversationID string, isTyping bool) error {
	key := typingKey(userID, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Cancel before publishing, so a failed publish never leaves a stale
	// timer behind to fire a stop the peers did not see typing for.
	if timer, ok := c.timers[key]; ok {
		timer.Stop()
		delete(c.timers, key)
	}

	if err := c.broadcast.Typing(ctx, conversationID, userID, isTyping); err != nil {
		return err
	}

	if !isTyping {
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(c.window, func() {
		c.expire(userID, conversationID, timer)
	})
	c.timers[key] = timer
	return nil
}

// expire fires when a typing window lapses without a new event.
func (c *TypingCoordinator) expire(userID, conversationID string, timer *time.Timer) {
	key := typingKey(userID, conversationID)

	c.mu.Lock()
	// A fire already in flight can race a reset; only the timer that still
	// owns the map entry may publish the stop.
	if c.timers[key] != timer {
		c.mu.Unlock()
		return
	}
	delete(c.timers, key)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.broadcast.Typing(ctx, conversationID, userID, false); err != nil {
		c.log.Warn("failed to publish stopped-typing", "user", userID, "conversation", conversationID, "err", err)
	}
}

// Shutdown cancels all pending timers. No stopped-typing events are
// published; clients time indicators out on their own.
func (c *TypingCoordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, timer := range c.timers {
		timer.Stop()
		delete(c.timers, key)
	}
}
