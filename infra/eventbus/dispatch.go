package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
)

// handlerSet is the registration table shared by the durable transports.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]eventbus.HandlerFunc
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[events.EventType][]eventbus.HandlerFunc)}
}

// add registers handler and reports whether it is the first one for eventType.
func (s *handlerSet) add(eventType events.EventType, handler eventbus.HandlerFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.handlers[eventType]) == 0
	s.handlers[eventType] = append(s.handlers[eventType], handler)
	return first
}

func (s *handlerSet) get(eventType events.EventType) []eventbus.HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]eventbus.HandlerFunc, len(s.handlers[eventType]))
	copy(out, s.handlers[eventType])
	return out
}

// executeHandlers runs every handler concurrently and joins their errors.
// A panicking handler counts as failed.
func executeHandlers(
	ctx context.Context,
	logger *slog.Logger,
	evt events.Event,
	handlers []eventbus.HandlerFunc,
	msgID string,
) error {
	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, handler := range handlers {
		wg.Add(1)
		go func(i int, h eventbus.HandlerFunc) {
			defer wg.Done()
			if err := safeCall(ctx, h, evt); err != nil {
				logger.Error("handler error", "error", err, "event_type", evt.Type(), "msg_id", msgID)
				errs[i] = err
			}
		}(i, handler)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// executeWithRetry gives the handlers up to attempts tries before the
// caller dead-letters the message.
func executeWithRetry(
	ctx context.Context,
	logger *slog.Logger,
	evt events.Event,
	handlers []eventbus.HandlerFunc,
	msgID string,
	attempts int,
) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = executeHandlers(ctx, logger, evt, handlers, msgID); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}
