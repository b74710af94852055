// settle/scheduler.go
package settle

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/protocol"
)

// Scheduler keeps the current-period leaderboards alive and settles each
// period shortly after its boundary passes.
type Scheduler struct {
	engine  *Engine
	periods *period.Generator
	sched   gocron.Scheduler
}

func NewScheduler(engine *Engine, periods *period.Generator) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{engine: engine, periods: periods, sched: sched}, nil
}

// Start begins the background jobs. Leaderboard upkeep runs every minute
// so a freshly crossed boundary gets its board within a minute; the
// settlement sweep looks for just-closed periods.
func (s *Scheduler) Start() error {
	s.sched.Start()

	if _, err := s.sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(s.ensureCurrentLeaderboards),
	); err != nil {
		return err
	}
	if _, err := s.sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(s.settleClosedPeriods),
	); err != nil {
		return err
	}

	// Run the upkeep once immediately so the first period of a fresh
	// deployment has boards before any ticket is sold.
	go s.ensureCurrentLeaderboards()
	return nil
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) ensureCurrentLeaderboards() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, t := range []period.Type{period.Daily, period.Weekly, period.Monthly} {
		id := s.periods.Current(t)
		if err := s.engine.EnsureLeaderboard(ctx, t, id); err != nil {
			logger.Log.Warnw("Leaderboard upkeep failed", "type", t, "period", id, "error", err)
		}
	}
}

// settleClosedPeriods settles the previous period of each type. The
// engine's idempotence makes repeating this every few minutes harmless:
// settled periods short-circuit on the already-finalized path.
func (s *Scheduler) settleClosedPeriods() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for _, t := range []period.Type{period.Daily, period.Weekly, period.Monthly} {
		id := s.periods.Previous(t)
		report, err := s.engine.SettlePeriod(ctx, t, id)
		if errors.Is(err, protocol.ErrAccountNotFound) {
			// No leaderboard means nobody played that period.
			continue
		}
		if err != nil {
			logger.Log.Warnw("Scheduled settlement failed", "type", t, "period", id, "error", err)
			continue
		}
		if !report.AlreadyFinalized {
			logger.Log.Infow("Period settled",
				"type", t, "period", id,
				"participants", report.TotalParticipants,
				"pool", report.PrizePool,
				"winners", len(report.Winners))
		}
	}
}
