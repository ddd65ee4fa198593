// Package duel is the only writer of match documents. Every operation reads
// the current document, runs the engine reducer and writes the result back
// with a compare-and-swap on the document version. Observers are notified
// only after a write has committed.
package duel

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
	"github.com/atc-pixel/yks-arena-sub001/internal/store"
)

type Config struct {
	Rules        engine.Rules
	CASRetries   int
	WinBonus     int
	PerfectBonus int
}

// CommitHook runs after a write committed. It must not block for long.
type CommitHook func(ctx context.Context, m engine.Match, events []engine.Event)

type Result struct {
	Match  engine.Match
	Events []engine.Event
	// Applied is false when the request lost a race and changed nothing.
	Applied bool
}

type Service struct {
	cfg      Config
	matches  store.MatchStore
	bank     questions.Bank
	profiles profile.Store
	log      *zap.Logger
	clock    clockwork.Clock
	hooks    []CommitHook

	pickSymbol func([]engine.Symbol) engine.Symbol
	newID      func() string
	newCode    func() (string, error)
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

func WithSymbolPicker(f func([]engine.Symbol) engine.Symbol) Option {
	return func(s *Service) { s.pickSymbol = f }
}

func WithIDs(f func() string) Option { return func(s *Service) { s.newID = f } }

func WithCodes(f func() (string, error)) Option { return func(s *Service) { s.newCode = f } }

func New(cfg Config, matches store.MatchStore, bank questions.Bank, profiles profile.Store, log *zap.Logger, opts ...Option) *Service {
	if cfg.CASRetries <= 0 {
		cfg.CASRetries = 8
	}
	s := &Service{
		cfg:        cfg,
		matches:    matches,
		bank:       bank,
		profiles:   profiles,
		log:        log,
		clock:      clockwork.NewRealClock(),
		pickSymbol: randomSymbol,
		newID:      uuid.NewString,
		newCode:    GenerateCode,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnCommit registers a hook. Register hooks before serving traffic.
func (s *Service) OnCommit(h CommitHook) { s.hooks = append(s.hooks, h) }

func (s *Service) Rules() engine.Rules { return s.cfg.Rules }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// mutate is the read-reduce-CAS loop every match write goes through.
func (s *Service) mutate(ctx context.Context, id string, build func(cur engine.Match) (engine.Command, error)) (Result, error) {
	for attempt := 0; attempt < s.cfg.CASRetries; attempt++ {
		cur, err := s.matches.Get(ctx, id)
		if err != nil {
			return Result{}, s.loadErr(id, err)
		}

		cmd, err := build(cur)
		if err == nil {
			var events []engine.Event
			var next engine.Match
			events, next, err = engine.Apply(cur, cmd, s.cfg.Rules)
			if err == nil {
				saved, err := s.matches.Update(ctx, next)
				if errors.Is(err, store.ErrConflict) {
					s.log.Debug("match write conflict, retrying",
						zap.String("matchId", id), zap.Int("attempt", attempt+1))
					continue
				}
				if err != nil {
					return Result{}, fmt.Errorf("save match %s: %w", id, err)
				}
				s.committed(ctx, saved, events)
				return Result{Match: saved, Events: events, Applied: true}, nil
			}
		}

		if IsBenign(err) {
			return Result{Match: cur}, nil
		}
		return Result{Match: cur}, err
	}
	return Result{}, ErrContention
}

func (s *Service) loadErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrMatchNotFound
	}
	return fmt.Errorf("load match %s: %w", id, err)
}

func (s *Service) committed(ctx context.Context, m engine.Match, events []engine.Event) {
	for _, h := range s.hooks {
		h(ctx, m, events)
	}
	if m.Status == engine.StatusFinished && !m.Settled {
		if err := s.Settle(ctx, m.ID); err != nil {
			s.log.Warn("settlement deferred", zap.String("matchId", m.ID), zap.Error(err))
		}
	}
}

func (s *Service) create(ctx context.Context, m engine.Match) (engine.Match, error) {
	saved, err := s.matches.Create(ctx, m)
	if err != nil {
		return engine.Match{}, err
	}
	s.committed(ctx, saved, nil)
	return saved, nil
}

// Get returns the match if viewer plays in it.
func (s *Service) Get(ctx context.Context, id, viewer string) (engine.Match, error) {
	m, err := s.matches.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Match{}, ErrMatchNotFound
	}
	if err != nil {
		return engine.Match{}, err
	}
	if !m.IsPlayer(viewer) {
		return engine.Match{}, engine.ErrNotAPlayer
	}
	return m, nil
}

// ActiveQuestion returns the question currently being asked in the match.
// The answer key is still on it; callers must strip it before sending.
func (s *Service) ActiveQuestion(ctx context.Context, id, viewer string) (questions.Question, engine.Match, error) {
	m, err := s.Get(ctx, id, viewer)
	if err != nil {
		return questions.Question{}, engine.Match{}, err
	}
	if m.Turn.ActiveQuestion == "" {
		return questions.Question{}, m, engine.ErrWrongPhase
	}
	q, err := s.bank.Get(ctx, m.Turn.ActiveQuestion)
	return q, m, err
}

func (s *Service) ActiveMatch(ctx context.Context, uid string) (engine.Match, bool, error) {
	return s.matches.ActiveFor(ctx, uid)
}

// Due lists matches the timer authority should look at.
func (s *Service) Due(ctx context.Context, limit int) ([]engine.Match, error) {
	return s.matches.Due(ctx, s.now(), limit)
}

func (s *Service) answerKey(ctx context.Context, m engine.Match) (string, error) {
	if m.Turn.Phase != engine.PhaseQuestionActive || m.Turn.ActiveQuestion == "" {
		return "", nil
	}
	q, err := s.bank.Get(ctx, m.Turn.ActiveQuestion)
	if err != nil {
		return "", fmt.Errorf("answer key for %s: %w", m.Turn.ActiveQuestion, err)
	}
	return q.Answer, nil
}

func (s *Service) draw(ctx context.Context, m engine.Match, sym engine.Symbol) (questions.Question, error) {
	q, err := s.bank.Draw(ctx, sym, engine.ExcludedQuestions(m))
	if err != nil {
		return questions.Question{}, fmt.Errorf("draw %s: %w", sym, err)
	}
	return q, nil
}

func randomSymbol(syms []engine.Symbol) engine.Symbol {
	return syms[rand.IntN(len(syms))]
}
