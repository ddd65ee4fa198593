// Package store persists match documents with optimistic concurrency.
// Every write names the version it was computed from; a stale version is
// rejected with ErrConflict and the caller re-reads and retries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var ErrNotFound = errors.New("match not found")
var ErrConflict = errors.New("match version conflict")
var ErrInviteCodeTaken = errors.New("invite code taken")

type MatchStore interface {
	// Create inserts m at version 1. ErrInviteCodeTaken if another WAITING
	// match holds the same invite code.
	Create(ctx context.Context, m engine.Match) (engine.Match, error)
	Get(ctx context.Context, id string) (engine.Match, error)
	// Update writes m if the stored version still equals m.Version and
	// returns the document at its new version.
	Update(ctx context.Context, m engine.Match) (engine.Match, error)
	// FindByInviteCode prefers the WAITING match holding code.
	FindByInviteCode(ctx context.Context, code string) (engine.Match, error)
	// ActiveFor returns a WAITING or ACTIVE match uid plays in.
	ActiveFor(ctx context.Context, uid string) (engine.Match, bool, error)
	// Due lists matches whose wake time is at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]engine.Match, error)
}

// WakeFunc tells the store when a match next needs server attention.
type WakeFunc func(engine.Match) (time.Time, bool)

func isOpen(m engine.Match) bool {
	return m.Status == engine.StatusWaiting || m.Status == engine.StatusActive
}
