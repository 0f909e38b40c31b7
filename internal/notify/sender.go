package notify

import (
	"context"
	"fmt"

	"github.com/docuflow/docuflow-api/internal/domain"
)

// Sender delivers one outbox row over its channel. Implementations must
// treat delivery as at-least-once: a retried event may have been
// received before.
type Sender interface {
	// Send delivers the event and returns the remote acknowledgement.
	Send(ctx context.Context, event *domain.WebhookEvent) (response string, err error)
}

// Registry maps channels to their senders.
type Registry struct {
	senders map[domain.Channel]Sender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[domain.Channel]Sender)}
}

// Register binds a sender to a channel, replacing any previous binding.
func (r *Registry) Register(channel domain.Channel, sender Sender) {
	r.senders[channel] = sender
}

// Lookup returns the sender for a channel, or an error for a channel
// nothing was registered for. An unregistered channel fails the delivery
// attempt like any other send error, so the row surfaces as FAILED
// instead of vanishing.
func (r *Registry) Lookup(channel domain.Channel) (Sender, error) {
	sender, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel %q", channel)
	}
	return sender, nil
}
