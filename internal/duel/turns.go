package duel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
)

type RoundInfo struct {
	Match      engine.Match
	RoundID    string
	Symbol     engine.Symbol
	QuestionID string
	Applied    bool
}

func roundInfo(res Result) RoundInfo {
	t := res.Match.Turn
	return RoundInfo{
		Match:      res.Match,
		RoundID:    t.RoundID,
		Symbol:     t.ChallengeSymbol,
		QuestionID: t.ActiveQuestion,
		Applied:    res.Applied,
	}
}

type Answer struct {
	Choice          string
	QuestionID      string
	ClientElapsedMs int64
}

// Spin picks a symbol for the actor, draws a fresh question for it and
// starts the round clock.
func (s *Service) Spin(ctx context.Context, matchID, actor string) (RoundInfo, error) {
	res, err := s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		if err := engine.CheckSpin(cur, actor); err != nil {
			return engine.Command{}, err
		}
		sym := s.pickSymbol(engine.AvailableSymbols(cur, actor, s.cfg.Rules))
		q, err := s.draw(ctx, cur, sym)
		if err != nil {
			return engine.Command{}, err
		}
		return engine.Command{
			Type:       engine.CmdSpin,
			Actor:      actor,
			RoundID:    s.newID(),
			Symbol:     sym,
			QuestionID: q.ID,
			Now:        s.now(),
		}, nil
	})
	if err != nil {
		return RoundInfo{Match: res.Match}, err
	}
	return roundInfo(res), nil
}

func (s *Service) SubmitAnswer(ctx context.Context, matchID, actor string, a Answer) (Result, error) {
	res, err := s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		key, err := s.answerKey(ctx, cur)
		if err != nil {
			return engine.Command{}, err
		}
		return engine.Command{
			Type:            engine.CmdSubmitAnswer,
			Actor:           actor,
			QuestionID:      a.QuestionID,
			Choice:          a.Choice,
			AnswerKey:       key,
			ClientElapsedMs: a.ClientElapsedMs,
			Now:             s.now(),
		}, nil
	})
	s.logRound("answer", matchID, actor, res, err)
	return res, err
}

// TimeoutQuestion resolves the active round once its deadline passed.
// roundID may be empty to target whatever round is active.
func (s *Service) TimeoutQuestion(ctx context.Context, matchID, roundID string) (Result, error) {
	res, err := s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		return engine.Command{Type: engine.CmdTimeout, RoundID: roundID, Now: s.now()}, nil
	})
	s.logRound("timeout", matchID, "", res, err)
	return res, err
}

// Continue is the client saying it has shown the result.
func (s *Service) Continue(ctx context.Context, matchID, actor string) (Result, error) {
	return s.advance(ctx, matchID, engine.Command{Type: engine.CmdContinue, Actor: actor})
}

// FinalizeDecision advances a match left in QUESTION_RESULT past the grace window.
func (s *Service) FinalizeDecision(ctx context.Context, matchID string) (Result, error) {
	return s.advance(ctx, matchID, engine.Command{Type: engine.CmdFinalize})
}

// AbandonIdle ends a match that sat in SPIN past its spin deadline.
func (s *Service) AbandonIdle(ctx context.Context, matchID string) (Result, error) {
	res, err := s.mutate(ctx, matchID, func(engine.Match) (engine.Command, error) {
		return engine.Command{Type: engine.CmdAbandon, Now: s.now()}, nil
	})
	s.logRound("abandon", matchID, "", res, err)
	return res, err
}

func (s *Service) advance(ctx context.Context, matchID string, base engine.Command) (Result, error) {
	return s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		cmd := base
		cmd.Now = s.now()
		if sym, ok := engine.PendingStreakSymbol(cur); ok {
			q, err := s.draw(ctx, cur, sym)
			switch {
			case err == nil:
				cmd.QuestionID = q.ID
				cmd.RoundID = s.newID()
			case errors.Is(err, questions.ErrNoQuestionsLeft):
				s.log.Info("streak follow-up skipped", zap.String("matchId", matchID), zap.Error(err))
			default:
				return engine.Command{}, err
			}
		}
		return cmd, nil
	})
}

func (s *Service) logRound(op, matchID, actor string, res Result, err error) {
	if err != nil || !res.Applied {
		return
	}
	fields := []zap.Field{zap.String("matchId", matchID), zap.String("phase", string(res.Match.Turn.Phase))}
	if actor != "" {
		fields = append(fields, zap.String("uid", actor))
	}
	if engine.ContainsEvent(res.Events, engine.EvtMatchFinished) {
		fields = append(fields, zap.String("winner", res.Match.WinnerUID), zap.String("reason", string(res.Match.EndedReason)))
		s.log.Info("match finished", fields...)
		return
	}
	s.log.Debug("round resolved by "+op, fields...)
}
