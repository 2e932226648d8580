package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	infra_eventbus "github.com/amirasaad/autotransfer/infra/eventbus"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// RunSmokeTest emits one TransactionCompleted through the Kafka bus and
// waits for the registered handler to receive it. Broker settings come from
// the EVENT_BUS_* variables.
func RunSmokeTest() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var cfg config.EventBus
	if err := envconfig.Process("EVENT_BUS", &cfg); err != nil {
		return fmt.Errorf("load EVENT_BUS config: %w", err)
	}
	cfg.GroupID = cfg.GroupID + "-smoketest-" + uuid.NewString()[:8]

	bus, err := infra_eventbus.NewWithKafka(&cfg, logger)
	if err != nil {
		logger.Error("kafka bus unavailable", "brokers", cfg.KafkaBrokers, "error", err)
		return err
	}
	defer func() { _ = bus.Close() }()

	sent := events.NewTransactionCompleted(uuid.New(), uuid.New(), uuid.New(), 1_000, account.KindIncome)
	received := make(chan uuid.UUID, 1)
	bus.Register(events.EventTypeTransactionCompleted, func(ctx context.Context, e events.Event) error {
		if tc, ok := e.(*events.TransactionCompleted); ok && tc.TransactionID == sent.TransactionID {
			select {
			case received <- tc.TransactionID:
			default:
			}
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bus.Emit(ctx, sent); err != nil {
		logger.Error("emit failed", "error", err)
		return err
	}
	logger.Info("produced", "transaction_id", sent.TransactionID)

	select {
	case id := <-received:
		logger.Info("consumed", "transaction_id", id)
	case <-ctx.Done():
		logger.Error("no delivery before timeout", "error", ctx.Err())
		return ctx.Err()
	}

	logger.Info("kafka smoke test passed")
	return nil
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	if err := RunSmokeTest(); err != nil {
		os.Exit(1)
	}
}
