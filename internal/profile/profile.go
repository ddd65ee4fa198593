// Package profile stores the per-user document the duel, matchmaking and
// league components read and write: lifetime trophies, league standing,
// energy and granted rewards.
package profile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrNotFound = errors.New("profile not found")
var ErrConflict = errors.New("profile version conflict")
var ErrContention = errors.New("profile update kept conflicting")

// ErrNoChange tells Mutate to skip the write.
var ErrNoChange = errors.New("no change")

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// Tiers is ordered lowest first.
var Tiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}

func (t Tier) index() int {
	i := slices.Index(Tiers, t)
	if i < 0 {
		return 0
	}
	return i
}

func (t Tier) Promote() Tier { return Tiers[min(t.index()+1, len(Tiers)-1)] }
func (t Tier) Demote() Tier  { return Tiers[max(t.index()-1, 0)] }
func (t Tier) IsLowest() bool { return t.index() == 0 }
func (t Tier) IsHighest() bool {
	return t.index() == len(Tiers)-1
}

func LowestTier() Tier { return Tiers[0] }

type Item struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

// PendingGrant is a reward that was decided but not yet delivered.
type PendingGrant struct {
	GrantKey  string    `json:"grantKey"`
	RewardKey string    `json:"rewardKey"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
}

type LeagueState struct {
	CurrentLeague Tier `json:"currentLeague"`
	WeeklyScore   int  `json:"weeklyScore"`
	// WeeklyScoreAt is when the current score was reached; earlier wins ties.
	WeeklyScoreAt   time.Time `json:"weeklyScoreAt"`
	LastResetPeriod string    `json:"lastResetPeriod,omitempty"`
	// Standing the last reset ranked from, kept so a repeated run of the
	// same period ranks the full bracket again.
	ResetFrom    Tier      `json:"resetFrom,omitempty"`
	ResetScore   int       `json:"resetScore,omitempty"`
	ResetScoreAt time.Time `json:"resetScoreAt"`
}

type Stats struct {
	Played int `json:"played"`
	Won    int `json:"won"`
	Lost   int `json:"lost"`
	Drawn  int `json:"drawn"`
}

type Economy struct {
	Energy int `json:"energy"`
}

type Profile struct {
	UID           string         `json:"uid"`
	DisplayName   string         `json:"displayName,omitempty"`
	Trophies      int            `json:"trophies"`
	League        LeagueState    `json:"league"`
	Stats         Stats          `json:"stats"`
	Economy       Economy        `json:"economy"`
	Inventory     []Item         `json:"inventory"`
	Applied       []string       `json:"applied"`
	PendingGrants []PendingGrant `json:"pendingGrants"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Version       int64          `json:"version"`
}

// appliedWindow bounds the idempotency ledger kept on each profile.
const appliedWindow = 256

func New(uid string, energy int, now time.Time) Profile {
	return Profile{
		UID:           uid,
		League:        LeagueState{CurrentLeague: LowestTier()},
		Economy:       Economy{Energy: energy},
		Inventory:     []Item{},
		Applied:       []string{},
		PendingGrants: []PendingGrant{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (p Profile) HasApplied(key string) bool { return slices.Contains(p.Applied, key) }

func (p *Profile) MarkApplied(key string) {
	p.Applied = append(p.Applied, key)
	if over := len(p.Applied) - appliedWindow; over > 0 {
		p.Applied = slices.Delete(p.Applied, 0, over)
	}
}

func (p Profile) Clone() Profile {
	c := p
	c.Inventory = slices.Clone(p.Inventory)
	c.Applied = slices.Clone(p.Applied)
	c.PendingGrants = slices.Clone(p.PendingGrants)
	return c
}

type Store interface {
	Get(ctx context.Context, uid string) (Profile, error)
	// Ensure returns the profile, creating a fresh one if missing.
	Ensure(ctx context.Context, uid string) (Profile, error)
	// Update writes p if the stored version still equals p.Version.
	Update(ctx context.Context, p Profile) (Profile, error)
	// List returns every profile. The league job ranks from this snapshot.
	List(ctx context.Context) ([]Profile, error)
	// WithPendingGrants lists profiles that still owe reward deliveries.
	WithPendingGrants(ctx context.Context, limit int) ([]Profile, error)
}

// Mutate runs fn on a fresh copy of the profile and writes it back,
// retrying on version conflicts. fn may return ErrNoChange to skip the write.
func Mutate(ctx context.Context, s Store, uid string, retries int, fn func(p *Profile) error) (Profile, error) {
	for attempt := 0; attempt < max(retries, 1); attempt++ {
		cur, err := s.Ensure(ctx, uid)
		if err != nil {
			return Profile{}, err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, ErrNoChange) {
				return cur, nil
			}
			return cur, err
		}

		saved, err := s.Update(ctx, next)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Profile{}, fmt.Errorf("update profile %s: %w", uid, err)
		}
		return saved, nil
	}
	return Profile{}, ErrContention
}
