package profile

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	energy   int
	now      func() time.Time
}

func NewMemoryStore(startingEnergy int) *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		energy:   startingEnergy,
		now:      time.Now,
	}
}

// Put replaces a profile outright. Used for seeding.
func (s *MemoryStore) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	s.profiles[p.UID] = p.Clone()
}

func (s *MemoryStore) Get(_ context.Context, uid string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Ensure(_ context.Context, uid string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		p = New(uid, s.energy, s.now())
		p.Version = 1
		s.profiles[uid] = p
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[p.UID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if cur.Version != p.Version {
		return Profile{}, ErrConflict
	}
	p = p.Clone()
	p.Version++
	p.UpdatedAt = s.now()
	s.profiles[p.UID] = p
	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b Profile) int { return cmp.Compare(a.UID, b.UID) })
	return out, nil
}

func (s *MemoryStore) WithPendingGrants(_ context.Context, limit int) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Profile
	for _, p := range s.profiles {
		if len(p.PendingGrants) > 0 {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Profile) int { return cmp.Compare(a.UID, b.UID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
