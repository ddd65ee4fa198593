package duel

import (
	"errors"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var ErrMatchNotFound = errors.New("match not found")
var ErrInviteNotFound = errors.New("invite not found")
var ErrAlreadyInMatch = errors.New("already in a match")
var ErrInviteCodeCollision = errors.New("could not allocate a free invite code")
var ErrContention = errors.New("match kept changing underneath the update")

// errNothingToDo marks a request whose effect is already in place.
var errNothingToDo = errors.New("nothing to do")

// IsBenign reports errors that only mean someone else already did the work.
// Callers get the current document back instead of an error.
func IsBenign(err error) bool {
	return errors.Is(err, errNothingToDo) || engine.IsRaceLoss(err)
}
