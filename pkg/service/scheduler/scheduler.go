// Package scheduler turns elapsed periods of scheduled rules into ticks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/domain/outbox"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/handler/common"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/pkg/schedule"
	outboxsvc "github.com/amirasaad/autotransfer/pkg/service/outbox"
)

// LockName is the name of the lock taken around a pass.
const LockName = "scheduler-pass"

// PassLock keeps replicas from running passes at the same time. Ticks are
// deduplicated downstream, so losing the lock only costs wasted work.
type PassLock interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// Options configure a Scheduler.
type Options struct {
	Interval     time.Duration
	PassTimeout  time.Duration
	AnchorHour   int
	AnchorMinute int
	Location     *time.Location
	// MaxMissed caps the missed records written for one rule in one pass.
	MaxMissed int
	LockTTL   time.Duration
}

// OptionsFromConfig maps the SCHEDULER_* section.
func OptionsFromConfig(cfg *config.Scheduler) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Interval:     cfg.Interval,
		PassTimeout:  cfg.PassTimeout,
		AnchorHour:   cfg.AnchorHour,
		AnchorMinute: cfg.AnchorMinute,
		Location:     cfg.Location(),
		MaxMissed:    cfg.MaxMissed,
		LockTTL:      cfg.LockTTL,
	}
}

// Report summarizes one pass.
type Report struct {
	Rules    int
	Anchored int
	Emitted  int
	Missed   int
	// Dropped counts missed periods beyond MaxMissed that got no record.
	Dropped int
	Skipped bool
}

// Scheduler emits at most one ScheduleTick per rule and pass: the most
// recent elapsed period. Older elapsed periods are recorded as missed.
// The tick is staged in the outbox together with the cursor advance, so a
// tick the bus never received is re-sent by the relay.
type Scheduler struct {
	uow     repository.UnitOfWork
	guard   *common.IdempotencyGuard
	relay   *outboxsvc.Relay
	lock    PassLock
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// New creates a Scheduler. lock may be nil for a single replica.
func New(
	uow repository.UnitOfWork,
	guard *common.IdempotencyGuard,
	bus eventbus.Bus,
	lock PassLock,
	opts Options,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxMissed <= 0 {
		opts.MaxMissed = 366
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.PassTimeout + 30*time.Second
	}
	return &Scheduler{
		uow:    uow,
		guard:  guard,
		relay:  outboxsvc.NewRelay(uow, bus, outboxsvc.Options{}, logger),
		lock:   lock,
		opts:   opts,
		logger: logger.With("service", "scheduler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FirstAnchor returns the first configured time of day strictly after t.
func (s *Scheduler) FirstAnchor(t time.Time) time.Time {
	return schedule.FirstAnchor(t, s.opts.AnchorHour, s.opts.AnchorMinute, s.opts.Location).UTC()
}

// Start runs a pass immediately and then every Interval until ctx ends.
// Passes run one after another; ticks that fire during a pass are dropped.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("🟢 [START] Scheduler running", "interval", s.opts.Interval, "location", s.opts.Location)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunPass(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("❌ [ERROR] Scheduler pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunPass runs one bounded pass. A pass already running in this process, or
// a lock held by another replica, makes it return a skipped Report.
func (s *Scheduler) RunPass(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("🔁 [SKIP] Previous pass still running")
		return Report{Skipped: true}, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.opts.PassTimeout)
	defer cancel()

	if s.lock != nil {
		unlock, ok, err := s.lock.TryLock(ctx, LockName, s.opts.LockTTL)
		if err != nil {
			return Report{}, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !ok {
			s.logger.Info("🔁 [SKIP] Pass lock held elsewhere")
			return Report{Skipped: true}, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release pass lock", "error", err)
			}
		}()
	}

	ruleRepo, err := common.GetRuleRepository(s.uow, s.logger)
	if err != nil {
		return Report{}, err
	}
	rules, err := ruleRepo.ListActiveScheduled(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list scheduled rules: %w", err)
	}

	now := s.now()
	rep := Report{Rules: len(rules)}
	var errs []error
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.runRule(ctx, r, now, &rep); err != nil {
			s.logger.Error("❌ [ERROR] Rule schedule failed", "rule_id", r.ID, "error", err)
			errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
		}
	}
	s.logger.Info("✅ [SUCCESS] Scheduler pass finished",
		"rules", rep.Rules,
		"emitted", rep.Emitted,
		"missed", rep.Missed,
		"dropped", rep.Dropped,
		"anchored", rep.Anchored,
	)
	return rep, errors.Join(errs...)
}

func (s *Scheduler) runRule(ctx context.Context, r *rule.AccountRule, now time.Time, rep *Report) error {
	logger := s.logger.With("rule_id", r.ID, "frequency", r.Frequency)

	if r.ScheduleAnchor == nil {
		anchored, err := s.anchor(ctx, r)
		if err != nil {
			return err
		}
		if anchored == nil {
			logger.Info("⏭️ Rule left the schedule during the pass")
			return nil
		}
		r = anchored
		rep.Anchored++
	}
	sched, ok := schedule.New(r, s.opts.Location)
	if !ok {
		return nil
	}
	due := sched.Between(r.ScheduleReference(), now)
	if len(due) == 0 {
		return nil
	}

	latest := due[len(due)-1]
	missed := due[:len(due)-1]
	if len(missed) > s.opts.MaxMissed {
		dropped := len(missed) - s.opts.MaxMissed
		logger.Warn("Missed periods beyond cap are not recorded",
			"dropped", dropped,
			"oldest_dropped", missed[0],
		)
		rep.Dropped += dropped
		missed = missed[dropped:]
	}
	for _, at := range missed {
		created, err := s.guard.RecordMissed(ctx, r.ID, schedule.TickID(r.ID, at), at)
		if err != nil {
			return err
		}
		if created {
			rep.Missed++
		}
	}

	tick := events.NewScheduleTick(schedule.TickID(r.ID, latest), r.ID, latest, now)
	var staged []*outbox.Message
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		msgs, err := s.relay.Stage(ctx, uow, tick)
		if err != nil {
			return err
		}
		ruleRepo, err := common.GetRuleRepository(uow, logger)
		if err != nil {
			return err
		}
		if err := ruleRepo.AdvanceSchedule(ctx, r.ID, latest); err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		staged = msgs
		return nil
	})
	if err != nil {
		return fmt.Errorf("stage tick: %w", err)
	}
	rep.Emitted++
	logger.Info("✅ [SUCCESS] Tick staged", "event_id", tick.EventID, "due_at", latest, "missed", len(missed))
	s.relay.Publish(ctx, staged)
	return nil
}

// anchor fixes the first due instant of a rule stored without one and
// returns the stored rule. It returns nil when the rule is no longer an
// active scheduled rule.
func (s *Scheduler) anchor(ctx context.Context, r *rule.AccountRule) (*rule.AccountRule, error) {
	ruleRepo, err := common.GetRuleRepository(s.uow, s.logger)
	if err != nil {
		return nil, err
	}
	if err := ruleRepo.SetScheduleAnchor(ctx, r.ID, s.FirstAnchor(r.ScheduleReference())); err != nil {
		return nil, fmt.Errorf("store schedule anchor: %w", err)
	}
	stored, err := ruleRepo.Get(ctx, r.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload rule: %w", err)
	}
	if !stored.IsActive || stored.Trigger != rule.TriggerScheduled || stored.ScheduleAnchor == nil {
		return nil, nil
	}
	return stored, nil
}
