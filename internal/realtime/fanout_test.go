package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePublisher records publishes and can be told to fail specific channels.
type fakePublisher struct {
	published []publishedEvent
	failOn    map[string]bool
}

type publishedEvent struct {
	channel string
	payload any
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload any) error {
	if p.failOn[channel] {
		return errors.New("publish failed")
	}
	p.published = append(p.published, publishedEvent{channel: channel, payload: payload})
	return nil
}

type fakePeerSource struct {
	peers map[string][]string
	err   error
}

func (s *fakePeerSource) AcceptedPeerIDs(_ context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.peers[userID], nil
}

func TestChannelNames(t *testing.T) {
	if got := UserChannel("u1"); got != "chat:u1" {
		t.Errorf("UserChannel = %s", got)
	}
	if got := ConversationChannel("c1"); got != "conversation:c1" {
		t.Errorf("ConversationChannel = %s", got)
	}
}

func TestPresenceChangedFansOutToPeers(t *testing.T) {
	pub := &fakePublisher{}
	peers := &fakePeerSource{peers: map[string][]string{"alice": {"bob", "carol"}}}
	fanout := NewFanout(pub, peers)

	seen := time.Now()
	if err := fanout.PresenceChanged(context.Background(), "alice", "online", seen); err != nil {
		t.Fatalf("PresenceChanged failed: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.published))
	}
	channels := map[string]bool{}
	for _, p := range pub.published {
		channels[p.channel] = true
		event, ok := p.payload.(PresenceEvent)
		if !ok {
			t.Fatalf("unexpected payload type %T", p.payload)
		}
		if event.Type != "presence" || event.UserID != "alice" || event.Status != "online" {
			t.Errorf("unexpected event %+v", event)
		}
	}
	if !channels["chat:bob"] || !channels["chat:carol"] {
		t.Errorf("expected peer channels, got %v", channels)
	}
}

func TestPresenceChangedBestEffort(t *testing.T) {
	// bob's channel fails; carol must still receive the event.
	pub := &fakePublisher{failOn: map[string]bool{"chat:bob": true}}
	peers := &fakePeerSource{peers: map[string][]string{"alice": {"bob", "carol"}}}
	fanout := NewFanout(pub, peers)

	err := fanout.PresenceChanged(context.Background(), "alice", "away", time.Now())
	if err == nil {
		t.Fatal("expected first error to surface")
	}
	if len(pub.published) != 1 || pub.published[0].channel != "chat:carol" {
		t.Fatalf("expected delivery to carol despite bob failing, got %+v", pub.published)
	}
}

func TestPresenceChangedNoPeers(t *testing.T) {
	pub := &fakePublisher{}
	fanout := NewFanout(pub, &fakePeerSource{})

	if err := fanout.PresenceChanged(context.Background(), "alice", "online", time.Now()); err != nil {
		t.Fatalf("expected no error with zero peers, got %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publishes, got %d", len(pub.published))
	}
}

func TestTyping(t *testing.T) {
	pub := &fakePublisher{}
	fanout := NewFanout(pub, &fakePeerSource{})

	if err := fanout.Typing(context.Background(), "c1", "alice", true); err != nil {
		t.Fatalf("Typing failed: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	if pub.published[0].channel != "conversation:c1" {
		t.Errorf("unexpected channel %s", pub.published[0].channel)
	}
	event := pub.published[0].payload.(TypingEvent)
	if event.Type != "typing" || event.UserID != "alice" || !event.IsTyping {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestNewMessageTargets(t *testing.T) {
	pub := &fakePublisher{}
	fanout := NewFanout(pub, &fakePeerSource{})

	err := fanout.NewMessage(context.Background(), "c1", []string{"alice", "bob"}, map[string]string{"id": "m1"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if len(pub.published) != 3 {
		t.Fatalf("expected 3 publishes, got %d", len(pub.published))
	}
	want := []string{"conversation:c1", "chat:alice", "chat:bob"}
	for i, channel := range want {
		if pub.published[i].channel != channel {
			t.Errorf("publish %d: expected %s, got %s", i, channel, pub.published[i].channel)
		}
	}
}
