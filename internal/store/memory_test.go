package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestStore() *MemoryStore {
	rules := engine.DefaultRules()
	return NewMemoryStore(func(m engine.Match) (time.Time, bool) { return engine.NextWake(m, rules) })
}

func TestMemoryStore_UpdateIsCompareAndSwap(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, engine.NewRandomMatch("m1", "A", "B", "", engine.VariantAsync, t0, engine.DefaultRules()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	first := created.Clone()
	first.Turn.CurrentUID = "B"
	second := created.Clone()
	second.Turn.CurrentUID = "A"

	updated, err := s.Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, second)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Turn.CurrentUID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InviteCodes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	rules := engine.DefaultRules()

	_, err := s.Create(ctx, engine.NewInviteMatch("m1", "A", "A1B2C3", engine.VariantAsync, t0, rules))
	require.NoError(t, err)

	_, err = s.Create(ctx, engine.NewInviteMatch("m2", "C", "A1B2C3", engine.VariantAsync, t0, rules))
	assert.ErrorIs(t, err, ErrInviteCodeTaken)

	found, err := s.FindByInviteCode(ctx, "A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, "m1", found.ID)

	_, err = s.FindByInviteCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ActiveForAndDue(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	rules := engine.DefaultRules()

	_, err := s.Create(ctx, engine.NewInviteMatch("inv", "A", "A1B2C3", engine.VariantAsync, t0, rules))
	require.NoError(t, err)

	m, ok, err := s.ActiveFor(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "inv", m.ID)

	_, ok, err = s.ActiveFor(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	due, err := s.Due(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.Due(ctx, t0.Add(rules.InviteTTL), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "inv", due[0].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, engine.NewRandomMatch("m1", "A", "B", "", engine.VariantAsync, t0, engine.DefaultRules()))
	require.NoError(t, err)
	created.Players[0] = "mutated"

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Players[0])
}
