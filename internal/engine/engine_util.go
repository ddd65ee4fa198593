package engine

import (
	"slices"
	"time"
)

func NewInviteMatch(id, host, code string, variant Variant, now time.Time, rules Rules) Match {
	return Match{
		ID:         id,
		Status:     StatusWaiting,
		Mode:       ModeInvite,
		Variant:    variantOrDefault(variant),
		InviteCode: code,
		Players:    []string{host},
		Turn: Round{
			Phase:           PhaseWaitingForJoin,
			UsedQuestionIDs: []string{},
		},
		StateByUID: map[string]PlayerMatchState{host: newPlayerState(rules)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewRandomMatch builds an already ACTIVE match from a queue pairing.
// first waited longest and spins first.
func NewRandomMatch(id, first, second, category string, variant Variant, now time.Time, rules Rules) Match {
	return Match{
		ID:       id,
		Status:   StatusActive,
		Mode:     ModeRandom,
		Variant:  variantOrDefault(variant),
		Category: category,
		Players:  []string{first, second},
		Turn: Round{
			Phase:           PhaseSpin,
			CurrentUID:      first,
			UsedQuestionIDs: []string{},
		},
		StateByUID: map[string]PlayerMatchState{
			first:  newPlayerState(rules),
			second: newPlayerState(rules),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newPlayerState(rules Rules) PlayerMatchState {
	return PlayerMatchState{Lives: rules.StartingLives, Symbols: []Symbol{}}
}

func variantOrDefault(v Variant) Variant {
	if v == VariantSync {
		return VariantSync
	}
	return VariantAsync
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func deadline(m Match, rules Rules) time.Time {
	if m.Turn.RoundStartAt == nil {
		return time.Time{}
	}
	return m.Turn.RoundStartAt.Add(rules.RoundDuration)
}

// Deadline is when the active question times out.
func Deadline(m Match, rules Rules) (time.Time, bool) {
	if m.Turn.Phase != PhaseQuestionActive || m.Turn.RoundStartAt == nil {
		return time.Time{}, false
	}
	return deadline(m, rules), true
}

// ResultDeadline is when the server stops waiting for a client "continue".
func ResultDeadline(m Match, rules Rules) (time.Time, bool) {
	if m.Turn.Phase != PhaseQuestionResult || m.Turn.ResultAt == nil {
		return time.Time{}, false
	}
	return m.Turn.ResultAt.Add(rules.ResultGrace), true
}

// SpinDeadline is when a match idling in SPIN gets abandoned.
func SpinDeadline(m Match, rules Rules) (time.Time, bool) {
	if m.Status != StatusActive || m.Turn.Phase != PhaseSpin || rules.SpinTimeout <= 0 {
		return time.Time{}, false
	}
	return m.UpdatedAt.Add(rules.SpinTimeout), true
}

// AvailableSymbols lists what a spin may land on. Async spins skip symbols the
// actor holds, sync rounds skip symbols both players hold.
func AvailableSymbols(m Match, actor string, rules Rules) []Symbol {
	var out []Symbol
	for _, s := range rules.Symbols {
		switch m.Variant {
		case VariantSync:
			if !heldByAll(m, s) {
				out = append(out, s)
			}
		default:
			if !m.StateByUID[actor].Holds(s) {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return slices.Clone(rules.Symbols)
	}
	return out
}

func heldByAll(m Match, s Symbol) bool {
	for _, uid := range m.Players {
		if !m.StateByUID[uid].Holds(s) {
			return false
		}
	}
	return true
}

// PendingStreakSymbol reports the symbol the next question is locked to, if
// the last round earned a streak follow-up.
func PendingStreakSymbol(m Match) (Symbol, bool) {
	if m.Turn.Phase == PhaseQuestionResult && m.Turn.Next == NextContinueStreak {
		return m.Turn.ChallengeSymbol, true
	}
	return "", false
}

// ExcludedQuestions is everything a draw must avoid.
func ExcludedQuestions(m Match) []string {
	out := slices.Clone(m.Turn.UsedQuestionIDs)
	if m.Turn.ActiveQuestion != "" {
		out = append(out, m.Turn.ActiveQuestion)
	}
	return out
}

// NextWake is the next time the server must look at m without any client
// prompting it: a question deadline plus the submit grace, a result grace
// expiry, a spin deadline, an invite TTL or pending settlement.
func NextWake(m Match, rules Rules) (time.Time, bool) {
	switch m.Status {
	case StatusWaiting:
		return m.CreatedAt.Add(rules.InviteTTL), true
	case StatusActive:
		if at, ok := Deadline(m, rules); ok {
			return at.Add(rules.SubmitGrace), true
		}
		if at, ok := ResultDeadline(m, rules); ok {
			return at, true
		}
		return SpinDeadline(m, rules)
	case StatusFinished:
		if !m.Settled {
			return m.UpdatedAt, true
		}
	}
	return time.Time{}, false
}
