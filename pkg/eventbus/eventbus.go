package eventbus

import (
	"context"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
)

// HandlerFunc processes one event. A returned error is logged by the
// transport and, for durable transports, leaves the message for redelivery
// or the dead-letter queue.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus publishes events and dispatches them to registered handlers.
type Bus interface {
	Emit(ctx context.Context, event events.Event) error
	Register(eventType events.EventType, handler HandlerFunc)
}
