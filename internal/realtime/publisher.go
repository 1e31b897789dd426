package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher delivers an event payload to a named channel. Implementations
// marshal the payload themselves so callers can hand over plain structs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// NATSPublisher publishes events over a NATS connection. Channel names are
// used verbatim as NATS subjects; the transport bridges them to client
// subscriptions.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher returns a publisher bound to the given connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Publish marshals the payload to JSON and publishes it to the channel.
func (p *NATSPublisher) Publish(ctx context.Context, channel string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", channel, err)
	}

	if err := p.nc.Publish(channel, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
