package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierMoves(t *testing.T) {
	cases := []struct {
		tier     Tier
		promoted Tier
		demoted  Tier
	}{
		{TierBronze, TierSilver, TierBronze},
		{TierGold, TierPlatinum, TierSilver},
		{TierDiamond, TierDiamond, TierPlatinum},
	}
	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			assert.Equal(t, tc.promoted, tc.tier.Promote())
			assert.Equal(t, tc.demoted, tc.tier.Demote())
		})
	}
	assert.True(t, TierBronze.IsLowest())
	assert.True(t, TierDiamond.IsHighest())
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	s := NewMemoryStore(5)
	ctx := context.Background()

	calls := 0
	p, err := Mutate(ctx, s, "u1", 3, func(p *Profile) error {
		calls++
		if calls == 1 {
			// a concurrent writer bumps the version under us
			other, _ := s.Get(ctx, "u1")
			other.Trophies = 100
			_, err := s.Update(ctx, other)
			require.NoError(t, err)
		}
		p.Trophies += 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 110, p.Trophies)
	assert.Equal(t, int64(3), p.Version)
}

func TestMutate_NoChangeSkipsWrite(t *testing.T) {
	s := NewMemoryStore(5)
	ctx := context.Background()

	p, err := Mutate(ctx, s, "u1", 3, func(p *Profile) error { return ErrNoChange })
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, 5, p.Economy.Energy)
	assert.Equal(t, TierBronze, p.League.CurrentLeague)
}

func TestMutate_PassesErrorsThrough(t *testing.T) {
	s := NewMemoryStore(5)
	boom := errors.New("boom")

	_, err := Mutate(context.Background(), s, "u1", 3, func(p *Profile) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestMarkApplied_IsBounded(t *testing.T) {
	var p Profile
	for i := 0; i < appliedWindow+10; i++ {
		p.MarkApplied(fmt.Sprintf("match:%d:u1", i))
	}
	assert.Len(t, p.Applied, appliedWindow)
	assert.True(t, p.HasApplied(fmt.Sprintf("match:%d:u1", appliedWindow+9)))
	assert.False(t, p.HasApplied("match:0:u1"))
}

func TestMemoryStore_WithPendingGrants(t *testing.T) {
	s := NewMemoryStore(5)
	now := time.Now()
	p := New("u1", 5, now)
	p.PendingGrants = []PendingGrant{{GrantKey: "2026-W10:u1", RewardKey: "GOLD:TOP1"}}
	s.Put(p)
	s.Put(New("u2", 5, now))

	got, err := s.WithPendingGrants(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UID)
}
