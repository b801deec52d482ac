package ingest

import (
	"log/slog"

	"github.com/fleetops/devicecontrol/internal/models"
)

// eventBufferSize bounds each subscriber's state-transition channel; the WS
// hub drains it continuously, so this only needs to absorb a burst, not
// sustain backpressure.
const eventBufferSize = 1024

// EventBus fans a device's state-transition events out to every registered
// subscriber (the WebSocket hub, primarily). Delivery is best-effort: a slow
// subscriber drops events rather than blocking ingestion.
type EventBus struct {
	logger      *slog.Logger
	subscribers []chan models.StateTransitionEvent
}

// NewEventBus constructs an empty EventBus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe registers a new receiver and returns its channel. Must be called
// before the first Publish, since subscriber registration isn't
// synchronized against Publish.
func (b *EventBus) Subscribe() <-chan models.StateTransitionEvent {
	ch := make(chan models.StateTransitionEvent, eventBufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish emits an event to every subscriber, dropping it for any subscriber
// whose buffer is full rather than blocking the ingest path.
func (b *EventBus) Publish(evt models.StateTransitionEvent) {
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("ingest: event bus subscriber dropped event",
				slog.String("type", evt.Type), slog.String("device_id", evt.DeviceID))
		}
	}
}
