package questions

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

type MemoryBank struct {
	mu         sync.RWMutex
	byCategory map[engine.Symbol][]Question // sorted by RandomKey
	byID       map[string]Question
	pivot      func() float64
}

func NewMemoryBank(qs []Question) *MemoryBank {
	b := &MemoryBank{
		byCategory: make(map[engine.Symbol][]Question),
		byID:       make(map[string]Question),
		pivot:      rand.Float64,
	}
	b.Add(qs...)
	return b
}

func (b *MemoryBank) Add(qs ...Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range qs {
		b.byID[q.ID] = q
		b.byCategory[q.Category] = append(b.byCategory[q.Category], q)
	}
	for cat := range b.byCategory {
		slices.SortFunc(b.byCategory[cat], func(x, y Question) int { return cmp.Compare(x.RandomKey, y.RandomKey) })
	}
}

// Draw seeks to a random point in the category and takes the first unused
// question from there, wrapping around once.
func (b *MemoryBank) Draw(_ context.Context, category engine.Symbol, exclude []string) (Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool := b.byCategory[category]
	if len(pool) == 0 {
		return Question{}, ErrNoQuestionsLeft
	}

	r := b.pivot()
	start, _ := slices.BinarySearchFunc(pool, r, func(q Question, key float64) int { return cmp.Compare(q.RandomKey, key) })
	for i := range pool {
		q := pool[(start+i)%len(pool)]
		if !slices.Contains(exclude, q.ID) {
			return q, nil
		}
	}
	return Question{}, ErrNoQuestionsLeft
}

func (b *MemoryBank) Get(_ context.Context, id string) (Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.byID[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return q, nil
}
