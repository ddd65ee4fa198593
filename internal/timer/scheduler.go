package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/league"
)

type SchedulerConfig struct {
	SweepInterval  time.Duration
	RewardInterval time.Duration
	LeagueCron     string
}

// Rewarder drains reward grants still owed to players.
type Rewarder interface {
	DrainPending(ctx context.Context) error
}

// LeagueRunner runs the weekly league reset.
type LeagueRunner interface {
	RunWeekly(ctx context.Context) (league.Report, error)
}

// Scheduler owns the periodic background jobs.
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

// NewScheduler registers the sweep, reward drain and weekly league jobs.
// locker may be nil; when set, only one instance runs the league reset.
func NewScheduler(ctx context.Context, cfg SchedulerConfig, auth *Authority, rewards Rewarder, leagues LeagueRunner,
	locker gocron.Locker, clock clockwork.Clock, log *zap.Logger) (*Scheduler, error) {

	opts := []gocron.SchedulerOption{gocron.WithLocation(time.UTC)}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, log: log}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			n, err := auth.Sweep(ctx)
			if err != nil {
				log.Warn("sweep finished with errors", zap.Int("due", n), zap.Error(err))
			}
		}),
		gocron.WithName("match-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("sweep job: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.RewardInterval),
		gocron.NewTask(func() {
			if err := rewards.DrainPending(ctx); err != nil {
				log.Warn("reward drain finished with errors", zap.Error(err))
			}
		}),
		gocron.WithName("reward-drain"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("reward job: %w", err)
	}

	leagueOpts := []gocron.JobOption{
		gocron.WithName("league-weekly"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if locker != nil {
		leagueOpts = append(leagueOpts, gocron.WithDistributedJobLocker(locker))
	}
	_, err = sched.NewJob(
		gocron.CronJob(cfg.LeagueCron, false),
		gocron.NewTask(func() {
			if _, err := leagues.RunWeekly(ctx); err != nil {
				log.Error("league reset incomplete", zap.Error(err))
			}
		}),
		leagueOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("league job %q: %w", cfg.LeagueCron, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.sched.Jobs())))
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
