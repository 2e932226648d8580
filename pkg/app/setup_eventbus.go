// Package app wires the rule engine: the idempotency guard, transfer
// executor, trigger evaluator and scheduler share one unit of work and one
// event bus.
package app

import (
	rulehandler "github.com/amirasaad/autotransfer/pkg/handler/rule"
)

// setupEventBus registers all event handlers with the event bus.
func (a *App) setupEventBus() {
	rulehandler.Register(a.Deps.EventBus, a.Evaluator, a.Deps.Logger)
}
