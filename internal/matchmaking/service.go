package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

var ErrInsufficientEnergy = errors.New("insufficient energy")
var ErrAlreadyInMatch = errors.New("already in a match")
var errStalePool = errors.New("pairing kept hitting stale entries")

const DefaultCategory = "GENERAL"

// stale opponents popped in one call before giving up and queueing
const maxStalePops = 3

type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusMatched Status = "MATCHED"
)

type Ticket struct {
	Status      Status `json:"status"`
	MatchID     string `json:"matchId,omitempty"`
	WaitSeconds int    `json:"waitSeconds,omitempty"`
}

// Matches is the slice of the duel service the queue needs.
type Matches interface {
	CreateRandomMatch(ctx context.Context, first, second, category string, variant engine.Variant) (engine.Match, error)
	ActiveMatch(ctx context.Context, uid string) (engine.Match, bool, error)
}

type Config struct {
	EnergyPerMatch int
	AvgPairSeconds int
	CASRetries     int
}

type Service struct {
	cfg      Config
	queue    Queue
	matches  Matches
	profiles profile.Store
	log      *zap.Logger
	clock    clockwork.Clock
}

func NewService(cfg Config, queue Queue, matches Matches, profiles profile.Store, log *zap.Logger, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{cfg: cfg, queue: queue, matches: matches, profiles: profiles, log: log, clock: clock}
}

func (s *Service) EnterQueue(ctx context.Context, uid, category string, variant engine.Variant) (Ticket, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "" {
		category = DefaultCategory
	}
	if variant != engine.VariantSync {
		variant = engine.VariantAsync
	}

	queued, err := s.queue.Contains(ctx, uid)
	if err != nil {
		return Ticket{}, err
	}
	if queued {
		return Ticket{}, ErrAlreadyQueued
	}
	if busy, err := s.inMatch(ctx, uid); err != nil {
		return Ticket{}, err
	} else if busy {
		return Ticket{}, ErrAlreadyInMatch
	}

	p, err := s.profiles.Ensure(ctx, uid)
	if err != nil {
		return Ticket{}, fmt.Errorf("load profile %s: %w", uid, err)
	}
	if p.Economy.Energy < s.cfg.EnergyPerMatch {
		return Ticket{}, ErrInsufficientEnergy
	}

	me := Entry{UID: uid, Category: category, Variant: variant, EnqueuedAt: s.clock.Now().UTC()}
	for range maxStalePops {
		opp, paired, pos, err := s.queue.PairOrEnqueue(ctx, me)
		if err != nil {
			return Ticket{}, err
		}
		if !paired {
			s.log.Debug("queued", zap.String("uid", uid), zap.String("pool", me.pool()), zap.Int("position", pos))
			return Ticket{Status: StatusQueued, WaitSeconds: pos * s.cfg.AvgPairSeconds}, nil
		}

		// the opponent may have started an invite match while waiting
		if busy, err := s.inMatch(ctx, opp.UID); err == nil && busy {
			s.log.Info("dropped queued player already in a match", zap.String("uid", opp.UID))
			continue
		}

		m, err := s.matches.CreateRandomMatch(ctx, opp.UID, uid, category, variant)
		if err != nil {
			if perr := s.queue.PushFront(ctx, opp); perr != nil {
				s.log.Error("could not requeue opponent", zap.String("uid", opp.UID), zap.Error(perr))
			}
			return Ticket{}, fmt.Errorf("create random match: %w", err)
		}

		if err := s.spendEnergy(ctx, m.ID, opp.UID, uid); err != nil {
			s.log.Warn("energy spend failed", zap.String("matchId", m.ID), zap.Error(err))
		}
		s.log.Info("paired", zap.String("matchId", m.ID), zap.String("first", opp.UID), zap.String("second", uid),
			zap.Duration("waited", s.clock.Since(opp.EnqueuedAt)))
		return Ticket{Status: StatusMatched, MatchID: m.ID}, nil
	}
	return Ticket{}, errStalePool
}

func (s *Service) LeaveQueue(ctx context.Context, uid string) error {
	removed, err := s.queue.Remove(ctx, uid)
	if err != nil {
		return err
	}
	if removed {
		s.log.Debug("left queue", zap.String("uid", uid))
	}
	return nil
}

func (s *Service) inMatch(ctx context.Context, uid string) (bool, error) {
	_, ok, err := s.matches.ActiveMatch(ctx, uid)
	return ok, err
}

// spendEnergy charges both players once per match.
func (s *Service) spendEnergy(ctx context.Context, matchID string, uids ...string) error {
	key := "energy:" + matchID
	var errs error
	for _, uid := range uids {
		_, err := profile.Mutate(ctx, s.profiles, uid, s.cfg.CASRetries, func(p *profile.Profile) error {
			if p.HasApplied(key) {
				return profile.ErrNoChange
			}
			p.Economy.Energy = max(p.Economy.Energy-s.cfg.EnergyPerMatch, 0)
			p.MarkApplied(key)
			p.UpdatedAt = s.clock.Now().UTC()
			return nil
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}
