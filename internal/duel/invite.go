package duel

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/store"
)

const inviteCodeAttempts = 5

// GenerateCode returns a 6 character invite code from A-Z0-9.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type Invite struct {
	MatchID string
	Code    string
}

func (s *Service) CreateInvite(ctx context.Context, host string, variant engine.Variant) (Invite, error) {
	if err := s.ensureFree(ctx, host, ""); err != nil {
		return Invite{}, err
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return Invite{}, err
		}

		m := engine.NewInviteMatch(s.newID(), host, code, variant, s.now(), s.cfg.Rules)
		saved, err := s.create(ctx, m)
		if errors.Is(err, store.ErrInviteCodeTaken) {
			s.log.Info("collision on invite code, regenerating", zap.String("code", code))
			continue
		}
		if err != nil {
			return Invite{}, err
		}

		s.log.Info("invite created", zap.String("matchId", saved.ID), zap.String("host", host))
		return Invite{MatchID: saved.ID, Code: code}, nil
	}
	return Invite{}, ErrInviteCodeCollision
}

func (s *Service) JoinInvite(ctx context.Context, code, joiner string) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	m, err := s.matches.FindByInviteCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrInviteNotFound
	}
	if err != nil {
		return Result{}, err
	}
	if err := s.ensureFree(ctx, joiner, m.ID); err != nil {
		return Result{}, err
	}

	res, err := s.mutate(ctx, m.ID, func(cur engine.Match) (engine.Command, error) {
		// a retried join that already went through
		if cur.Status == engine.StatusActive && cur.IsPlayer(joiner) {
			return engine.Command{}, errNothingToDo
		}
		return engine.Command{Type: engine.CmdJoin, Actor: joiner, Now: s.now()}, nil
	})
	if err != nil {
		return res, err
	}
	if res.Applied {
		s.log.Info("invite joined", zap.String("matchId", m.ID), zap.String("uid", joiner))
	}
	return res, nil
}

func (s *Service) ExpireInvite(ctx context.Context, matchID string) (Result, error) {
	return s.mutate(ctx, matchID, func(cur engine.Match) (engine.Command, error) {
		return engine.Command{Type: engine.CmdExpireInvite, Now: s.now()}, nil
	})
}

// CreateRandomMatch starts a match for a queue pairing. first spins first.
func (s *Service) CreateRandomMatch(ctx context.Context, first, second, category string, variant engine.Variant) (engine.Match, error) {
	m := engine.NewRandomMatch(s.newID(), first, second, category, variant, s.now(), s.cfg.Rules)
	saved, err := s.create(ctx, m)
	if err != nil {
		return engine.Match{}, err
	}
	s.log.Info("random match created", zap.String("matchId", saved.ID),
		zap.String("first", first), zap.String("second", second), zap.String("category", category))
	return saved, nil
}

// ensureFree fails if uid already plays in an open match other than except.
func (s *Service) ensureFree(ctx context.Context, uid, except string) error {
	m, ok, err := s.matches.ActiveFor(ctx, uid)
	if err != nil {
		return err
	}
	if ok && m.ID != except {
		return ErrAlreadyInMatch
	}
	return nil
}
