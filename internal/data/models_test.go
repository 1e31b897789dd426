package data

import "testing"

func TestPairKeyCanonical(t *testing.T) {
	// Both directions of a pair collapse onto one key.
	if PairKey("alice", "bob") != PairKey("bob", "alice") {
		t.Fatal("pair key must be direction-independent")
	}
	if got, want := PairKey("bob", "alice"), "alice|bob"; got != want {
		t.Fatalf("PairKey = %q, want %q", got, want)
	}
	// Different pairs get different keys.
	if PairKey("alice", "bob") == PairKey("alice", "carol") {
		t.Fatal("distinct pairs must not collide")
	}
}

func TestValidPresenceStatus(t *testing.T) {
	for _, s := range []PresenceStatus{PresenceOnline, PresenceAway, PresenceOffline} {
		if !ValidPresenceStatus(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if ValidPresenceStatus("busy") {
		t.Fatal("unknown status accepted")
	}
}
