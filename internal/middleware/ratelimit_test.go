package middleware

import (
	"testing"
	"time"
)

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, 100*time.Millisecond)
	defer s.Stop()

	key := "user-1"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}

	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}

	// independent keys have independent budgets
	if !s.Allow("user-2") {
		t.Fatalf("expected fresh key to be allowed")
	}

	// ensure cleanup eventually removes old entries
	time.Sleep(150 * time.Millisecond)
	s.mu.Lock()
	if _, ok := s.clients[key]; !ok {
		// entry may be removed after cleanup; that's acceptable
	}
	s.mu.Unlock()
}
