// Package league runs the weekly league reset: every bracket is ranked by
// weekly score, the top of each bracket moves up a tier, the bottom moves
// down, scores start over and a reward is queued for everyone ranked.
package league

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

const DefaultBandSize = 5

type Move string

const (
	MoveStay    Move = "STAY"
	MovePromote Move = "PROMOTE"
	MoveDemote  Move = "DEMOTE"
	MoveReset   Move = "RESET"
)

type Bucket string

const (
	BucketTop1 Bucket = "TOP1"
	BucketTop3 Bucket = "TOP3"
	BucketTop5 Bucket = "TOP5"
	BucketRest Bucket = "REST"
)

// Placement is the outcome of the week for one player.
type Placement struct {
	UID     string
	From    profile.Tier
	To      profile.Tier
	Rank    int // 0-based within the bracket
	Size    int // players in the bracket
	Score   int
	ScoreAt time.Time
	Move    Move
	Bucket  Bucket
}

// RewardKey names the reward for the bracket and finishing position.
func (p Placement) RewardKey() string { return fmt.Sprintf("%s:%s", p.From, p.Bucket) }

func bucketFor(rank int) Bucket {
	switch {
	case rank == 0:
		return BucketTop1
	case rank < 3:
		return BucketTop3
	case rank < 5:
		return BucketTop5
	}
	return BucketRest
}

func tierOf(p profile.Profile) profile.Tier {
	if p.League.CurrentLeague == "" {
		return profile.LowestTier()
	}
	return p.League.CurrentLeague
}

// Rank places every profile. Within a bracket higher weekly score ranks
// first, then the earlier time the score was reached, then uid.
// The first band players move up, the last band players move down, and a
// player who scored nothing drops to the lowest tier. When a bracket is
// smaller than two bands promotion wins.
func Rank(profiles []profile.Profile, band int) []Placement {
	if band <= 0 {
		band = DefaultBandSize
	}

	brackets := make(map[profile.Tier][]profile.Profile)
	for _, p := range profiles {
		t := tierOf(p)
		brackets[t] = append(brackets[t], p)
	}

	var out []Placement
	for _, tier := range profile.Tiers {
		members := brackets[tier]
		slices.SortFunc(members, compareStanding)

		n := len(members)
		for rank, p := range members {
			pl := Placement{
				UID:     p.UID,
				From:    tier,
				To:      tier,
				Rank:    rank,
				Size:    n,
				Score:   p.League.WeeklyScore,
				ScoreAt: p.League.WeeklyScoreAt,
				Move:    MoveStay,
				Bucket:  bucketFor(rank),
			}
			switch {
			case p.League.WeeklyScore <= 0:
				pl.To = profile.LowestTier()
				pl.Move = MoveReset
			case rank < band:
				pl.To = tier.Promote()
				pl.Move = MovePromote
			case rank >= n-band:
				pl.To = tier.Demote()
				pl.Move = MoveDemote
			}
			if pl.To == pl.From {
				pl.Move = MoveStay
			}
			out = append(out, pl)
		}
	}
	return out
}

func compareStanding(a, b profile.Profile) int {
	if c := cmp.Compare(b.League.WeeklyScore, a.League.WeeklyScore); c != 0 {
		return c
	}
	if c := compareTime(a.League.WeeklyScoreAt, b.League.WeeklyScoreAt); c != 0 {
		return c
	}
	return cmp.Compare(a.UID, b.UID)
}

// zero times sort last: a score without a timestamp never wins a tie
func compareTime(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Compare(b)
}

// Period names the ISO week holding the day before t, e.g. "2026-W42".
// Run at Monday 00:00 it is the week that just ended.
func Period(t time.Time) string {
	year, week := t.UTC().AddDate(0, 0, -1).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
