package duel

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

// Outcome is what one player takes away from a finished match.
type Outcome struct {
	UID      string
	Trophies int
	Won      bool
	Lost     bool
	Drawn    bool
}

// Outcomes computes per-player deltas for a finished match.
func Outcomes(m engine.Match, winBonus, perfectBonus int) []Outcome {
	out := make([]Outcome, 0, len(m.Players))
	for _, uid := range m.Players {
		st := m.StateByUID[uid]
		o := Outcome{UID: uid, Trophies: st.Trophies}
		switch m.WinnerUID {
		case "":
			o.Drawn = true
		case uid:
			o.Won = true
			o.Trophies += winBonus
		default:
			o.Lost = true
		}
		if st.AnsweredCount > 0 && st.WrongCount == 0 {
			o.Trophies += perfectBonus
		}
		out = append(out, o)
	}
	return out
}

func settlementKey(matchID, uid string) string {
	return fmt.Sprintf("match:%s:%s", matchID, uid)
}

// Settle applies a finished match to both player profiles and marks it
// settled. Each profile write is keyed so a repeated call never counts twice.
func (s *Service) Settle(ctx context.Context, matchID string) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return s.loadErr(matchID, err)
	}
	if m.Settled {
		return nil
	}
	if m.Status != engine.StatusFinished {
		return engine.ErrMatchNotFinished
	}

	endedAt := m.UpdatedAt
	if m.EndedAt != nil {
		endedAt = *m.EndedAt
	}

	var errs error
	for _, o := range Outcomes(m, s.cfg.WinBonus, s.cfg.PerfectBonus) {
		key := settlementKey(m.ID, o.UID)
		_, err := profile.Mutate(ctx, s.profiles, o.UID, s.cfg.CASRetries, func(p *profile.Profile) error {
			if p.HasApplied(key) {
				return profile.ErrNoChange
			}
			p.Trophies += o.Trophies
			if o.Trophies > 0 {
				p.League.WeeklyScore += o.Trophies
				p.League.WeeklyScoreAt = endedAt
			}
			p.Stats.Played++
			switch {
			case o.Won:
				p.Stats.Won++
			case o.Lost:
				p.Stats.Lost++
			case o.Drawn:
				p.Stats.Drawn++
			}
			p.MarkApplied(key)
			p.UpdatedAt = s.now()
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle %s for %s: %w", m.ID, o.UID, err))
		}
	}
	if errs != nil {
		return errs
	}

	res, err := s.mutate(ctx, m.ID, func(engine.Match) (engine.Command, error) {
		return engine.Command{Type: engine.CmdMarkSettled}, nil
	})
	if err != nil {
		return err
	}
	if res.Applied {
		s.log.Info("match settled", zap.String("matchId", m.ID), zap.String("winner", m.WinnerUID))
	}
	return nil
}
