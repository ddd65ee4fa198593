package duel

import (
	"context"
	"errors"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
)

// StartSyncDuelQuestion opens the next shared round. Calling it while a round
// is already running returns that round unchanged.
func (s *Service) StartSyncDuelQuestion(ctx context.Context, matchID, actor string) (RoundInfo, error) {
	res, err := s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		if err := engine.CheckStartSync(cur, actor); err != nil {
			return engine.Command{}, err
		}

		cmd := engine.Command{Type: engine.CmdStartSync, Actor: actor, RoundID: s.newID(), Now: s.now()}
		if sym, ok := engine.PendingStreakSymbol(cur); ok {
			q, err := s.draw(ctx, cur, sym)
			if err == nil {
				cmd.Symbol, cmd.QuestionID = sym, q.ID
				return cmd, nil
			}
			if !errors.Is(err, questions.ErrNoQuestionsLeft) {
				return engine.Command{}, err
			}
			// streak symbol ran dry: the round is rotated without a question
			return cmd, nil
		}

		cmd.Symbol = s.pickSymbol(engine.AvailableSymbols(cur, actor, s.cfg.Rules))
		q, err := s.draw(ctx, cur, cmd.Symbol)
		if err != nil {
			return engine.Command{}, err
		}
		cmd.QuestionID = q.ID
		return cmd, nil
	})
	if err != nil {
		return RoundInfo{Match: res.Match}, err
	}
	info := roundInfo(res)
	if res.Match.Turn.Phase == engine.PhaseSpin && res.Applied {
		// rotated without opening a round, open one now
		return s.StartSyncDuelQuestion(ctx, matchID, actor)
	}
	return info, nil
}

func (s *Service) SubmitSyncDuelAnswer(ctx context.Context, matchID, actor, roundID string, a Answer) (Result, error) {
	res, err := s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		key, err := s.answerKey(ctx, cur)
		if err != nil {
			return engine.Command{}, err
		}
		return engine.Command{
			Type:            engine.CmdSubmitSync,
			Actor:           actor,
			RoundID:         roundID,
			Choice:          a.Choice,
			AnswerKey:       key,
			ClientElapsedMs: a.ClientElapsedMs,
			Now:             s.now(),
		}, nil
	})
	s.logRound("sync answer", matchID, actor, res, err)
	return res, err
}

func (s *Service) TimeoutSyncDuelQuestion(ctx context.Context, matchID, roundID string) (Result, error) {
	if err := s.requireVariant(ctx, matchID, engine.VariantSync); err != nil {
		return Result{}, err
	}
	return s.TimeoutQuestion(ctx, matchID, roundID)
}

func (s *Service) FinalizeSyncDuelDecision(ctx context.Context, matchID string) (Result, error) {
	if err := s.requireVariant(ctx, matchID, engine.VariantSync); err != nil {
		return Result{}, err
	}
	return s.FinalizeDecision(ctx, matchID)
}

func (s *Service) requireVariant(ctx context.Context, matchID string, v engine.Variant) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return s.loadErr(matchID, err)
	}
	if m.Variant != v {
		return engine.ErrWrongVariant
	}
	return nil
}
