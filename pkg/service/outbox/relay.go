// Package outbox delivers events staged in the outbox table to the bus.
//
// Writers stage events in the unit of work that commits the state change
// and publish them right after commit. A message the bus did not accept,
// or one left behind by a crash, stays pending and is re-sent by
// DispatchPending. Delivery is at least once; handlers dedupe on event id.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/repository"
	repooutbox "github.com/amirasaad/autotransfer/pkg/repository/outbox"
)

// Options configure a Relay.
type Options struct {
	Interval time.Duration
	// MinAge keeps DispatchPending away from messages their writer is
	// still publishing.
	MinAge    time.Duration
	BatchSize int
}

// OptionsFromConfig maps the OUTBOX_* section.
func OptionsFromConfig(cfg *config.Outbox) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Interval:  cfg.Interval,
		MinAge:    cfg.MinAge,
		BatchSize: cfg.BatchSize,
	}
}

// Report counts delivery results.
type Report struct {
	Published int
	Failed    int
	Invalid   int
}

func (r *Report) add(o Report) {
	r.Published += o.Published
	r.Failed += o.Failed
	r.Invalid += o.Invalid
}

type Relay struct {
	uow    repository.UnitOfWork
	bus    eventbus.Bus
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewRelay creates a Relay. With a nil bus messages are staged and left
// pending.
func NewRelay(
	uow repository.UnitOfWork,
	bus eventbus.Bus,
	opts Options,
	logger *slog.Logger,
) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MinAge <= 0 {
		opts.MinAge = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{
		uow:    uow,
		bus:    bus,
		opts:   opts,
		logger: logger.With("service", "outbox_relay"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Stage writes evts to the outbox of uow, which must be the unit committing
// the state they describe.
func (r *Relay) Stage(ctx context.Context, uow repository.UnitOfWork, evts ...events.Event) ([]*outbox.Message, error) {
	repo, err := uow.OutboxRepository()
	if err != nil {
		return nil, err
	}
	now := r.now()
	msgs := make([]*outbox.Message, 0, len(evts))
	for _, evt := range evts {
		m, err := outbox.New(evt, now)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := repo.Add(ctx, msgs...); err != nil {
		return nil, fmt.Errorf("stage events: %w", err)
	}
	return msgs, nil
}

// Publish sends messages whose unit has committed. Failures are recorded on
// the message and left to DispatchPending.
func (r *Relay) Publish(ctx context.Context, msgs []*outbox.Message) Report {
	var rep Report
	if r.bus == nil || len(msgs) == 0 {
		return rep
	}
	repo, err := r.uow.OutboxRepository()
	if err != nil {
		r.logger.Error("❌ [ERROR] Outbox repository unavailable", "error", err)
		return rep
	}
	for _, m := range msgs {
		rep.add(r.deliver(ctx, repo, m))
	}
	return rep
}

// DispatchPending re-sends one batch of pending messages, oldest first.
func (r *Relay) DispatchPending(ctx context.Context) (Report, error) {
	var rep Report
	if r.bus == nil {
		return rep, nil
	}
	repo, err := r.uow.OutboxRepository()
	if err != nil {
		return rep, err
	}
	pending, err := repo.ListPending(ctx, r.now().Add(-r.opts.MinAge), r.opts.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list pending outbox messages: %w", err)
	}
	if len(pending) == 0 {
		return rep, nil
	}
	r.logger.Info("🟢 [START] Dispatching pending outbox messages", "count", len(pending))
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.add(r.deliver(ctx, repo, m))
	}
	r.logger.Info("✅ [SUCCESS] Outbox dispatch finished",
		"published", rep.Published,
		"failed", rep.Failed,
		"invalid", rep.Invalid,
	)
	return rep, nil
}

// Start dispatches pending messages every Interval until ctx ends.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.DispatchPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("❌ [ERROR] Outbox dispatch failed", "error", err)
			}
		}
	}
}

func (r *Relay) deliver(ctx context.Context, repo repooutbox.Repository, m *outbox.Message) Report {
	logger := r.logger.With("message_id", m.ID, "event_type", m.EventType)
	evt, err := m.Event()
	if err != nil {
		logger.Error("❌ [ERROR] Outbox message cannot be decoded", "error", err)
		if markErr := repo.MarkInvalid(ctx, m.ID, err.Error(), r.now()); markErr != nil {
			logger.Warn("failed to mark outbox message invalid", "error", markErr)
		}
		return Report{Invalid: 1}
	}
	if err := r.bus.Emit(ctx, evt); err != nil {
		logger.Warn("🔁 [RETRY] Event not accepted; left pending", "attempts", m.Attempts+1, "error", err)
		if markErr := repo.MarkAttemptFailed(ctx, m.ID, err.Error(), r.now()); markErr != nil {
			logger.Warn("failed to record outbox attempt", "error", markErr)
		}
		return Report{Failed: 1}
	}
	// A message whose mark is lost is sent again; handlers dedupe on event id.
	if err := repo.MarkPublished(ctx, m.ID, r.now()); err != nil {
		logger.Warn("failed to mark outbox message published", "error", err)
	}
	logger.Info("📤 [EMIT] " + m.EventType)
	return Report{Published: 1}
}
