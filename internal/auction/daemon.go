package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Expirer is the slice of the engine the timer daemon drives.
type Expirer interface {
	ExpiredSessions(ctx context.Context, now time.Time) ([]int64, error)
	AdvanceExpired(ctx context.Context, sessionID int64, now time.Time) (RoundResult, bool, error)
}

type TickReport struct {
	Expired  int `json:"expired"`
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
}

// Daemon closes rounds whose deadline passed, independent of client activity.
type Daemon struct {
	src   Expirer
	log   *slog.Logger
	clock clockwork.Clock
	every time.Duration
}

func NewDaemon(src Expirer, logger *slog.Logger, every time.Duration, clock clockwork.Clock) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if every <= 0 {
		every = time.Second
	}
	return &Daemon{src: src, log: logger, clock: clock, every: every}
}

// Tick advances every session due at now. A failing session is logged and skipped.
func (d *Daemon) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	var report TickReport
	ids, err := d.src.ExpiredSessions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list expired sessions: %w", err)
	}
	report.Expired = len(ids)
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, advanced, err := d.src.AdvanceExpired(ctx, id, now)
		if err != nil {
			report.Failed++
			d.log.Error("advance expired round failed", "session_id", id, "error", err)
			continue
		}
		if advanced {
			report.Advanced++
		}
	}
	return report, nil
}

// Run ticks on a fixed interval until ctx is cancelled. Ticks never overlap.
func (d *Daemon) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(d.clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(d.every),
		gocron.NewTask(func() {
			report, err := d.Tick(ctx, d.clock.Now().UTC())
			if err != nil {
				d.log.Error("timer tick failed", "error", err)
				return
			}
			if report.Expired > 0 {
				d.log.Debug("timer tick", "expired", report.Expired, "advanced", report.Advanced, "failed", report.Failed)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("auction-round-expiry"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule tick: %w", err)
	}
	d.log.Info("timer daemon started", "every", d.every.String())
	sched.Start()
	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	d.log.Info("timer daemon stopped")
	return nil
}
