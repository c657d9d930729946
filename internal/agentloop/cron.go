package agentloop

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/atelierai/agentcore/internal/sessionmgr"
)

// DefaultSweepSchedule runs the timeout sweep every thirty seconds. The
// spec's timeout policy (§4.1) only guarantees a transition on the *next*
// status/step call for an expired session; this sweep exists so a session
// nobody is polling still gets marked Timeout in a bounded window.
const DefaultSweepSchedule = "@every 30s"

// TimeoutSweeper periodically scans the session store for sessions whose
// time_limit has elapsed and transitions them to Timeout without invoking
// the driver, grounded on the teacher's internal/cron scheduling style
// (cron.New + AddFunc) rather than the heavier distributed-lock task
// scheduler, since this sweep needs no cross-worker coordination beyond
// the store's own per-session locking.
type TimeoutSweeper struct {
	Store    sessionmgr.Store
	Manager  *sessionmgr.Manager
	Schedule string
	Logger   *slog.Logger

	cron *cron.Cron
}

// NewTimeoutSweeper constructs a sweeper with the default schedule.
func NewTimeoutSweeper(store sessionmgr.Store, manager *sessionmgr.Manager, logger *slog.Logger) *TimeoutSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutSweeper{
		Store:    store,
		Manager:  manager,
		Schedule: DefaultSweepSchedule,
		Logger:   logger,
	}
}

// Start begins the background sweep. Stop must be called to release the
// underlying cron scheduler's goroutine.
func (t *TimeoutSweeper) Start(ctx context.Context, owners []string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(t.Schedule)
	if err != nil {
		return err
	}
	t.cron = cron.New()
	t.cron.Schedule(schedule, cron.FuncJob(func() {
		t.sweep(ctx, owners)
	}))
	t.cron.Start()
	return nil
}

// Stop halts the background sweep, waiting for any in-flight run to finish.
func (t *TimeoutSweeper) Stop() {
	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
}

func (t *TimeoutSweeper) sweep(ctx context.Context, owners []string) {
	for _, owner := range owners {
		sessions, err := t.Store.List(ctx, owner)
		if err != nil {
			t.Logger.Warn("timeout sweep: list sessions failed", "owner", owner, "error", err)
			continue
		}
		for _, session := range sessions {
			if session.Status.Terminal() {
				continue
			}
			if _, err := t.Manager.Status(ctx, session.ID); err != nil {
				t.Logger.Warn("timeout sweep: status check failed", "session", session.ID, "error", err)
			}
		}
	}
}
