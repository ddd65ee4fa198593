package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

type MemoryStore struct {
	mu      sync.Mutex
	matches map[string]engine.Match
	wake    WakeFunc
}

func NewMemoryStore(wake WakeFunc) *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]engine.Match),
		wake:    wake,
	}
}

func (s *MemoryStore) Create(_ context.Context, m engine.Match) (engine.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[m.ID]; exists {
		return engine.Match{}, ErrConflict
	}
	if m.InviteCode != "" {
		for _, other := range s.matches {
			if other.InviteCode == m.InviteCode && other.Status == engine.StatusWaiting {
				return engine.Match{}, ErrInviteCodeTaken
			}
		}
	}

	m = m.Clone()
	m.Version = 1
	s.matches[m.ID] = m
	return m.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (engine.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return engine.Match{}, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, m engine.Match) (engine.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.matches[m.ID]
	if !ok {
		return engine.Match{}, ErrNotFound
	}
	if cur.Version != m.Version {
		return engine.Match{}, ErrConflict
	}

	m = m.Clone()
	m.Version++
	s.matches[m.ID] = m
	return m.Clone(), nil
}

func (s *MemoryStore) FindByInviteCode(_ context.Context, code string) (engine.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *engine.Match
	for _, m := range s.matches {
		if m.InviteCode != code {
			continue
		}
		if m.Status == engine.StatusWaiting {
			return m.Clone(), nil
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = &m
		}
	}
	if found == nil {
		return engine.Match{}, ErrNotFound
	}
	return found.Clone(), nil
}

func (s *MemoryStore) ActiveFor(_ context.Context, uid string) (engine.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if isOpen(m) && m.IsPlayer(uid) {
			return m.Clone(), true, nil
		}
	}
	return engine.Match{}, false, nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]engine.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type due struct {
		at time.Time
		m  engine.Match
	}
	var out []due
	for _, m := range s.matches {
		at, ok := s.wake(m)
		if ok && !at.After(now) {
			out = append(out, due{at: at, m: m.Clone()})
		}
	}
	slices.SortFunc(out, func(a, b due) int { return a.at.Compare(b.at) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	ms := make([]engine.Match, len(out))
	for i, d := range out {
		ms[i] = d.m
	}
	return ms, nil
}
