// Package fanout forwards a curated subset of domain events to an outbound
// channel: an SNS topic, an HTTP webhook, or nowhere at all. Delivery is best
// effort; a failed publish is logged and never blocks the originating
// operation.
package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"go.uber.org/zap"
)

// Publisher delivers one serialized event envelope.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// forwardedKinds lists the events worth announcing outside the process.
var forwardedKinds = []bus.Kind{
	bus.KindUserCreated,
	bus.KindOrganizationCreated,
	bus.KindProjectCreated,
	bus.KindSyncCreated,
	bus.KindLoginRequested,
}

// Forwarder subscribes to the bus and hands envelopes to a Publisher.
type Forwarder struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewForwarder constructs a forwarder. A nil publisher disables fan-out.
func NewForwarder(publisher Publisher, logger *zap.Logger) *Forwarder {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{publisher: publisher, logger: logger}
}

// Register attaches the forwarder to every forwarded event kind.
func (f *Forwarder) Register(eventBus *bus.Bus) {
	for _, kind := range forwardedKinds {
		eventBus.Subscribe(kind, f.handle)
	}
}

func (f *Forwarder) handle(ctx context.Context, event bus.Event) error {
	payload, err := encodeEnvelope(event)
	if err != nil {
		f.logger.Error("Failed to encode outbound event", zap.String("kind", string(event.Kind())), zap.Error(err))
		return nil
	}
	if err := f.publisher.Publish(ctx, payload); err != nil {
		f.logger.Error("Failed to publish outbound event", zap.String("kind", string(event.Kind())), zap.Error(err))
	}
	return nil
}

// encodeEnvelope flattens the event fields next to its type and timestamp.
func encodeEnvelope(event bus.Event) ([]byte, error) {
	envelope := make(map[string]any, len(event.Fields())+2)
	for key, value := range event.Fields() {
		envelope[key] = value
	}
	envelope["type"] = string(event.Kind())
	envelope["timestamp"] = event.OccurredAt().UTC().Format(time.RFC3339)
	return json.Marshal(envelope)
}

// NoopPublisher discards every envelope.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, []byte) error { return nil }
