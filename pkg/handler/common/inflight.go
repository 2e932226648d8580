package common

import (
	"context"
	"log/slog"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"golang.org/x/sync/singleflight"
)

// KeyExtractor extracts a delivery key from an event
type KeyExtractor func(events.Event) string

// EventKey keys transaction events by transaction id and ticks by event id.
func EventKey(e events.Event) string {
	switch ev := e.(type) {
	case *events.TransactionCompleted:
		return ev.TransactionID.String()
	case *events.ScheduleTick:
		return ev.EventID.String()
	}
	return ""
}

// WithInflightDedupe collapses concurrent deliveries of the same event in
// this process into one handler call. Waiting callers observe the same
// result. Deliveries that arrive later still reach the handler; the
// IdempotencyGuard is what makes them no-ops.
func WithInflightDedupe(
	handler eventbus.HandlerFunc,
	keyExtractor KeyExtractor,
	handlerName string,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	var inflight singleflight.Group
	return func(ctx context.Context, e events.Event) error {
		key := keyExtractor(e)
		if key == "" {
			return handler(ctx, e)
		}
		_, err, shared := inflight.Do(e.Type()+":"+key, func() (any, error) {
			return nil, handler(ctx, e)
		})
		if shared {
			logger.Debug("🔁 [SKIP] Joined in-flight delivery",
				"handler", handlerName,
				"event_type", e.Type(),
				"idempotency_key", key,
			)
		}
		return err
	}
}
