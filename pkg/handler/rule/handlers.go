package rule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/handler/common"
)

// HandleTransactionCompleted evaluates on_income and on_expense rules for
// every completed transaction.
func HandleTransactionCompleted(
	ev *Evaluator,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	return func(
		ctx context.Context,
		e events.Event,
	) error {
		log := logger.With(
			"handler", "rule.HandleTransactionCompleted",
			"event_type", e.Type(),
		)

		tc, ok := e.(*events.TransactionCompleted)
		if !ok {
			err := fmt.Errorf("unexpected event type: %s", e.Type())
			log.Error("unexpected event type", "error", err)
			return err
		}
		log = log.With("transaction_id", tc.TransactionID, "account_id", tc.AccountID)

		results, err := ev.EvaluateTransaction(ctx, tc)
		if err != nil {
			log.Error("❌ [ERROR] Rule evaluation incomplete", "error", err)
			return err
		}
		if len(results) > 0 {
			log.Info("✅ [SUCCESS] Rules evaluated", "evaluations", len(results))
		}
		return nil
	}
}

// HandleScheduleTick evaluates the scheduled rule a tick was emitted for.
func HandleScheduleTick(
	ev *Evaluator,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	return func(
		ctx context.Context,
		e events.Event,
	) error {
		log := logger.With(
			"handler", "rule.HandleScheduleTick",
			"event_type", e.Type(),
		)

		tick, ok := e.(*events.ScheduleTick)
		if !ok {
			err := fmt.Errorf("unexpected event type: %s", e.Type())
			log.Error("unexpected event type", "error", err)
			return err
		}
		log = log.With("rule_id", tick.RuleID, "event_id", tick.EventID, "due_at", tick.DueAt)
		log.Info("🟢 [START] Processing Schedule.Tick")

		res, err := ev.EvaluateTick(ctx, tick)
		if err != nil {
			log.Error("❌ [ERROR] Tick evaluation incomplete", "error", err)
			return err
		}
		if res != nil {
			log.Info("✅ [SUCCESS] Tick evaluated", "decision", res.Decision, "outcome", res.Outcome)
		}
		return nil
	}
}

// Register subscribes the evaluator to both trigger streams.
func Register(bus eventbus.Bus, ev *Evaluator, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	bus.Register(
		events.EventTypeTransactionCompleted,
		common.WithInflightDedupe(HandleTransactionCompleted(ev, logger), common.EventKey, "rule.HandleTransactionCompleted", logger),
	)
	bus.Register(
		events.EventTypeScheduleTick,
		common.WithInflightDedupe(HandleScheduleTick(ev, logger), common.EventKey, "rule.HandleScheduleTick", logger),
	)
}
