// Package timer is the server's clock for matches. Deadlines are enforced
// here, never by clients: an armed timer fires the transition at the
// deadline, and a periodic sweep catches anything a restart or another
// instance left behind.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/duel"
	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

// Driver is what the authority drives.
type Driver interface {
	Rules() engine.Rules
	TimeoutQuestion(ctx context.Context, matchID, roundID string) (duel.Result, error)
	FinalizeDecision(ctx context.Context, matchID string) (duel.Result, error)
	ExpireInvite(ctx context.Context, matchID string) (duel.Result, error)
	AbandonIdle(ctx context.Context, matchID string) (duel.Result, error)
	Settle(ctx context.Context, matchID string) error
	Due(ctx context.Context, limit int) ([]engine.Match, error)
}

const sweepBatch = 200

type Authority struct {
	driver Driver
	clock  clockwork.Clock
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[string]armed
}

type armed struct {
	at    time.Time
	timer clockwork.Timer
}

func NewAuthority(parent context.Context, driver Driver, clock clockwork.Clock, log *zap.Logger) *Authority {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Authority{
		driver: driver,
		clock:  clock,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]armed),
	}
}

// Arm schedules the next server-side transition for m, replacing any timer
// armed for an older version. It has the duel.CommitHook signature.
func (a *Authority) Arm(_ context.Context, m engine.Match, _ []engine.Event) {
	at, ok := engine.NextWake(m, a.driver.Rules())
	// settlement runs inline after the final commit; the sweep retries it
	if m.IsTerminal() {
		ok = false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, exists := a.timers[m.ID]; exists {
		prev.timer.Stop()
		delete(a.timers, m.ID)
	}
	if !ok || a.ctx.Err() != nil {
		return
	}

	snapshot := m.Clone()
	t := a.clock.AfterFunc(max(at.Sub(a.clock.Now()), 0), func() { a.fire(snapshot, at) })
	a.timers[m.ID] = armed{at: at, timer: t}
}

// Armed reports how many matches have a pending timer.
func (a *Authority) Armed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

func (a *Authority) fire(m engine.Match, at time.Time) {
	a.mu.Lock()
	if cur, ok := a.timers[m.ID]; ok && cur.at.Equal(at) {
		delete(a.timers, m.ID)
	}
	a.mu.Unlock()

	if a.ctx.Err() != nil {
		return
	}
	if err := a.Handle(a.ctx, m); err != nil {
		a.log.Warn("timer transition failed", zap.String("matchId", m.ID), zap.Error(err))
	}
}

// Handle runs whatever transition m is waiting on. A transition someone else
// already made is not an error.
func (a *Authority) Handle(ctx context.Context, m engine.Match) error {
	var (
		res duel.Result
		err error
		op  string
	)
	switch {
	case m.Status == engine.StatusWaiting:
		op = "expire invite"
		res, err = a.driver.ExpireInvite(ctx, m.ID)
	case m.Status == engine.StatusFinished && !m.Settled:
		op = "settle"
		err = a.driver.Settle(ctx, m.ID)
	case m.Turn.Phase == engine.PhaseQuestionActive:
		op = "timeout"
		res, err = a.driver.TimeoutQuestion(ctx, m.ID, m.Turn.RoundID)
	case m.Turn.Phase == engine.PhaseQuestionResult:
		op = "finalize"
		res, err = a.driver.FinalizeDecision(ctx, m.ID)
	case m.Turn.Phase == engine.PhaseSpin:
		op = "abandon"
		res, err = a.driver.AbandonIdle(ctx, m.ID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, m.ID, err)
	}
	if res.Applied {
		a.log.Debug("timer transition", zap.String("matchId", m.ID), zap.String("op", op),
			zap.String("phase", string(res.Match.Turn.Phase)))
	}
	return nil
}

// Sweep handles every match whose wake time has passed. Safe to run on
// several instances at once.
func (a *Authority) Sweep(ctx context.Context) (int, error) {
	due, err := a.driver.Due(ctx, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list due matches: %w", err)
	}
	var errs error
	for _, m := range due {
		errs = multierr.Append(errs, a.Handle(ctx, m))
	}
	return len(due), errs
}

// Close stops every pending timer.
func (a *Authority) Close() {
	a.cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, t := range a.timers {
		t.timer.Stop()
		delete(a.timers, id)
	}
}
