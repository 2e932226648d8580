package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/handler/common"
	rulehandler "github.com/amirasaad/autotransfer/pkg/handler/rule"
	"github.com/amirasaad/autotransfer/pkg/retry"
	"github.com/amirasaad/autotransfer/pkg/service/ledger"
	outboxsvc "github.com/amirasaad/autotransfer/pkg/service/outbox"
	rulesvc "github.com/amirasaad/autotransfer/pkg/service/rule"
	"github.com/amirasaad/autotransfer/pkg/service/scheduler"
	"github.com/amirasaad/autotransfer/pkg/service/transfer"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Deps          *config.Deps
	Config        *config.App
	Guard         *common.IdempotencyGuard
	Executor      *transfer.Executor
	Evaluator     *rulehandler.Evaluator
	Scheduler     *scheduler.Scheduler
	Relay         *outboxsvc.Relay
	RuleService   *rulesvc.Service
	LedgerService *ledger.Service
}

// New builds the engine on deps and subscribes it to the bus. lock may be
// nil when a single replica runs the scheduler.
func New(deps *config.Deps, lock scheduler.PassLock) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.App{}
		deps.Config = cfg
	}
	policy := retry.FromConfig(cfg.Retry)

	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	app.Guard = common.NewIdempotencyGuard(deps.Uow, policy, deps.Logger)
	app.Executor = transfer.New(deps.Uow, deps.EventBus, policy, deps.Logger)
	app.Evaluator = rulehandler.NewEvaluator(
		deps.Uow,
		app.Guard,
		app.Executor,
		evaluatorOptions(cfg.Evaluator),
		deps.Logger,
	)
	app.Scheduler = scheduler.New(
		deps.Uow,
		app.Guard,
		deps.EventBus,
		lock,
		scheduler.OptionsFromConfig(cfg.Scheduler),
		deps.Logger,
	)
	app.Relay = outboxsvc.NewRelay(
		deps.Uow,
		deps.EventBus,
		outboxsvc.OptionsFromConfig(cfg.Outbox),
		deps.Logger,
	)
	app.RuleService = rulesvc.NewService(*deps)
	app.LedgerService = ledger.NewService(*deps)
	app.setupEventBus()
	return app
}

func evaluatorOptions(cfg *config.Evaluator) rulehandler.Options {
	if cfg == nil {
		return rulehandler.Options{}
	}
	return rulehandler.Options{
		Workers:     cfg.Workers,
		PassTimeout: cfg.PassTimeout,
	}
}

// Start runs the scheduler, the outbox relay and the stale reservation sweep
// until ctx ends. Each may be disabled through configuration.
func (a *App) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.Config.Scheduler == nil || a.Config.Scheduler.Enabled {
		g.Go(func() error {
			a.Scheduler.Start(ctx)
			return nil
		})
	}
	if a.Config.Outbox == nil || a.Config.Outbox.Enabled {
		g.Go(func() error {
			a.Relay.Start(ctx)
			return nil
		})
	}
	if a.Config.Evaluator == nil || a.Config.Evaluator.RecoverEnabled {
		g.Go(func() error {
			a.recoverLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) recoverLoop(ctx context.Context) {
	every, stale := 5*time.Minute, 5*time.Minute
	if c := a.Config.Evaluator; c != nil {
		if c.RecoverEvery > 0 {
			every = c.RecoverEvery
		}
		if c.StaleAfter > 0 {
			stale = c.StaleAfter
		}
	}
	logger := a.Deps.Logger.With("worker", "recover")
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := a.Evaluator.Recover(ctx, stale)
			if err != nil {
				logger.Error("❌ [ERROR] Recovery sweep incomplete", "error", err)
			}
			if len(results) > 0 {
				logger.Info("✅ [SUCCESS] Stale reservations resolved", "count", len(results))
			}
		}
	}
}
