package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/amirasaad/autotransfer/infra/initializer"
	"github.com/amirasaad/autotransfer/pkg/app"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/middleware"
	log "github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  scheduler-pass                      run one scheduler pass
  recover [age]                       re-drive reservations older than age (default 5m)
  outbox-dispatch                     re-send one batch of undelivered events
  rules <owner_id>                    list an owner's rules
  executions <owner_id> <rule_id>     list a rule's execution records
  token <user_id>                     sign an API token`

var errUsage = errors.New(usage)

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("failed to load configuration", "error", err)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		log.Fatal("failed to initialize dependencies", "error", err)
	}
	a := app.New(&deps.Deps, deps.Lock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = runCommand(ctx, a, os.Stdout, os.Args[1:])
	stop()
	_ = deps.Close()
	if errors.Is(err, errUsage) {
		fmt.Println(usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runCommand(ctx context.Context, a *app.App, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "scheduler-pass":
		rep, err := a.Scheduler.RunPass(ctx)
		if err != nil {
			return err
		}
		if rep.Skipped {
			_, err = fmt.Fprintln(out, "pass skipped: another instance holds the lock")
			return err
		}
		_, err = fmt.Fprintf(out, "rules=%d anchored=%d emitted=%d missed=%d dropped=%d\n",
			rep.Rules, rep.Anchored, rep.Emitted, rep.Missed, rep.Dropped)
		return err

	case "outbox-dispatch":
		rep, err := a.Relay.DispatchPending(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "published=%d failed=%d invalid=%d\n", rep.Published, rep.Failed, rep.Invalid)
		return err

	case "recover":
		age := 5 * time.Minute
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid age %q: %w", args[1], err)
			}
			age = d
		}
		evals, err := a.Evaluator.Recover(ctx, age)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tEVENT\tOUTCOME\tAMOUNT") //nolint: errcheck
		for _, e := range evals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", e.RuleID, e.EventID, e.Outcome, e.Amount) //nolint: errcheck
		}
		if err := w.Flush(); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "recovered %d reservation(s)\n", len(evals))
		return err

	case "rules":
		if len(args) < 2 {
			return errUsage
		}
		owner, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
		rules, err := a.RuleService.ListRules(ctx, owner)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tKIND\tVALUE\tACTIVE") //nolint: errcheck
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", //nolint: errcheck
				r.ID, r.Name, r.Trigger, r.Computation, r.Value, r.IsActive)
		}
		return w.Flush()

	case "executions":
		if len(args) < 3 {
			return errUsage
		}
		owner, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
		ruleID, err := uuid.Parse(args[2])
		if err != nil {
			return fmt.Errorf("invalid rule id: %w", err)
		}
		recs, err := a.RuleService.ListExecutions(ctx, owner, ruleID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tOUTCOME\tAMOUNT\tTRIGGER_AMOUNT\tREASON") //nolint: errcheck
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", //nolint: errcheck
				r.EventID, r.Outcome, r.Amount, r.TriggerAmount, r.Reason)
		}
		return w.Flush()

	case "token":
		if len(args) < 2 {
			return errUsage
		}
		userID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		if a.Config.Auth == nil || a.Config.Auth.Jwt == nil {
			return errors.New("AUTH_JWT_SECRET is not configured")
		}
		jwtCfg := a.Config.Auth.Jwt
		token, err := middleware.SignToken(jwtCfg.Secret, userID, jwtCfg.Expiry)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err
	}
	return errUsage
}
