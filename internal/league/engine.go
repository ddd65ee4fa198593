package league

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

// Deliverer pays out pending grants for one user.
type Deliverer interface {
	Deliver(ctx context.Context, uid string) error
}

type Config struct {
	BandSize   int
	CASRetries int
}

type Report struct {
	Period   string
	Ranked   int
	Promoted int
	Demoted  int
	Reset    int
	Skipped  int
}

type Engine struct {
	cfg      Config
	profiles profile.Store
	rewards  Deliverer
	log      *zap.Logger
	clock    clockwork.Clock
}

func NewEngine(cfg Config, profiles profile.Store, rewards Deliverer, log *zap.Logger, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{cfg: cfg, profiles: profiles, rewards: rewards, log: log, clock: clock}
}

// RunWeekly resets the week that just ended.
func (e *Engine) RunWeekly(ctx context.Context) (Report, error) {
	return e.Run(ctx, Period(e.clock.Now()))
}

// Run ranks one snapshot of all profiles and applies each placement in its
// own profile write. Profiles already reset for period are ranked from the
// standing recorded at their reset but not written again, so a failed run
// can be repeated without reshaping the brackets.
func (e *Engine) Run(ctx context.Context, period string) (Report, error) {
	snapshot, err := e.profiles.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list profiles: %w", err)
	}

	done := make(map[string]bool)
	standings := make([]profile.Profile, 0, len(snapshot))
	for _, p := range snapshot {
		if p.League.LastResetPeriod == period {
			done[p.UID] = true
			p.League.CurrentLeague = p.League.ResetFrom
			p.League.WeeklyScore = p.League.ResetScore
			p.League.WeeklyScoreAt = p.League.ResetScoreAt
		}
		standings = append(standings, p)
	}

	rep := Report{Period: period}
	var errs error
	now := e.clock.Now().UTC()
	for _, pl := range Rank(standings, e.cfg.BandSize) {
		if done[pl.UID] {
			rep.Skipped++
			continue
		}
		applied, err := e.apply(ctx, period, pl, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("league %s for %s: %w", period, pl.UID, err))
			continue
		}
		if !applied {
			rep.Skipped++
			continue
		}

		rep.Ranked++
		switch pl.Move {
		case MovePromote:
			rep.Promoted++
		case MoveDemote:
			rep.Demoted++
		case MoveReset:
			rep.Reset++
		}

		if e.rewards != nil {
			if err := e.rewards.Deliver(ctx, pl.UID); err != nil {
				// stays pending, the reward job retries it
				e.log.Warn("league reward delivery deferred", zap.String("uid", pl.UID), zap.Error(err))
			}
		}
	}

	e.log.Info("league reset",
		zap.String("period", period),
		zap.Int("ranked", rep.Ranked),
		zap.Int("promoted", rep.Promoted),
		zap.Int("demoted", rep.Demoted),
		zap.Int("reset", rep.Reset),
		zap.Int("skipped", rep.Skipped),
		zap.Error(errs))
	return rep, errs
}

func (e *Engine) apply(ctx context.Context, period string, pl Placement, now time.Time) (bool, error) {
	applied := false
	_, err := profile.Mutate(ctx, e.profiles, pl.UID, e.cfg.CASRetries, func(p *profile.Profile) error {
		applied = false
		if p.League.LastResetPeriod == period {
			return profile.ErrNoChange
		}
		p.League.ResetFrom = pl.From
		p.League.ResetScore = pl.Score
		p.League.ResetScoreAt = pl.ScoreAt
		p.League.CurrentLeague = pl.To
		p.League.WeeklyScore = 0
		p.League.WeeklyScoreAt = time.Time{}
		p.League.LastResetPeriod = period
		p.PendingGrants = append(p.PendingGrants, profile.PendingGrant{
			GrantKey:  fmt.Sprintf("league:%s:%s", period, pl.UID),
			RewardKey: pl.RewardKey(),
			CreatedAt: now,
		})
		p.UpdatedAt = now
		applied = true
		return nil
	})
	if errors.Is(err, profile.ErrNotFound) {
		return false, nil
	}
	return applied, err
}
