package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrNotAPlayer = errors.New("not a player in this match")
var ErrNotYourTurn = errors.New("not your turn")
var ErrWrongPhase = errors.New("wrong phase")
var ErrWrongVariant = errors.New("wrong duel variant")
var ErrMatchNotActive = errors.New("match not active")
var ErrInviteAlreadyUsed = errors.New("invite already used")
var ErrCannotJoinOwnInvite = errors.New("cannot join own invite")
var ErrInviteNotExpired = errors.New("invite not expired")
var ErrMissingQuestion = errors.New("command carries no question")
var ErrQuestionAlreadyUsed = errors.New("question already used in this match")
var ErrMissingAnswerKey = errors.New("command carries no answer key")
var ErrRoundNotExpired = errors.New("round deadline not reached")
var ErrDecisionNotDue = errors.New("result grace window not elapsed")
var ErrSpinNotDue = errors.New("spin deadline not reached")
var ErrMatchNotFinished = errors.New("match not finished")
var ErrUnsupportedCommand = errors.New("unsupported command")

// Race-loss errors. The caller's intent was already handled by someone else.
var ErrRoundExpired = errors.New("round already resolved")
var ErrAlreadyResolved = errors.New("already resolved")
var ErrDuplicateAnswer = errors.New("answer already recorded")
var ErrRoundInProgress = errors.New("round already in progress")
var ErrAlreadySettled = errors.New("match already settled")

// IsRaceLoss reports whether err means another writer got there first.
func IsRaceLoss(err error) bool {
	return errors.Is(err, ErrRoundExpired) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrDuplicateAnswer) ||
		errors.Is(err, ErrRoundInProgress) ||
		errors.Is(err, ErrAlreadySettled)
}

type LifeLossPolicy string

const (
	LifeLossAlways LifeLossPolicy = "ALWAYS"
	// Only a player who did not yet hold the challenge symbol pays a life.
	LifeLossContested LifeLossPolicy = "CONTESTED"
)

type Rules struct {
	StartingLives      int
	SymbolsToWin       int
	Symbols            []Symbol
	RoundDuration      time.Duration
	SubmitGrace        time.Duration
	ResultGrace        time.Duration
	// SpinTimeout is how long a match may sit in SPIN before it is abandoned.
	// Zero waits forever.
	SpinTimeout        time.Duration
	InviteTTL          time.Duration
	TrophiesPerCorrect int
	StreakMultiplier   int
	RoundLimit         int
	LifeLoss           LifeLossPolicy
}

func DefaultRules() Rules {
	return Rules{
		StartingLives:      5,
		SymbolsToWin:       4,
		Symbols:            []Symbol{"SPOR", "TARIH", "BILIM", "COGRAFYA", "SANAT", "EGLENCE"},
		RoundDuration:      20 * time.Second,
		SubmitGrace:        time.Second,
		ResultGrace:        5 * time.Second,
		SpinTimeout:        2 * time.Minute,
		InviteTTL:          10 * time.Minute,
		TrophiesPerCorrect: 10,
		StreakMultiplier:   2,
		RoundLimit:         40,
		LifeLoss:           LifeLossAlways,
	}
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdSpin         CommandType = "Spin"
	CmdSubmitAnswer CommandType = "SubmitAnswer"
	CmdTimeout      CommandType = "Timeout"
	CmdContinue     CommandType = "Continue"
	CmdFinalize     CommandType = "Finalize"
	CmdExpireInvite CommandType = "ExpireInvite"
	CmdStartSync    CommandType = "StartSyncQuestion"
	CmdSubmitSync   CommandType = "SubmitSyncAnswer"
	CmdMarkSettled  CommandType = "MarkSettled"
	CmdAbandon      CommandType = "Abandon"
)

/*
	CmdJoin         -> EvtPlayerJoined -> EvtTurnAdvanced
	CmdSpin         -> EvtQuestionStarted
	CmdSubmitAnswer -> EvtAnswerRecorded -> EvtSymbolGained / EvtStreakBonus / EvtLifeLost -> EvtRoundResolved -> EvtMatchFinished?
	CmdTimeout      -> EvtRoundTimedOut -> EvtLifeLost -> EvtRoundResolved -> EvtMatchFinished?
	CmdContinue     -> EvtQuestionStarted (streak follow-up) or EvtTurnAdvanced
	CmdFinalize     -> same as CmdContinue, once the result grace window passed
	CmdExpireInvite -> EvtMatchCancelled
	CmdAbandon      -> EvtMatchFinished (ABANDONED)
*/

type Command struct {
	Type            CommandType
	Actor           string
	RoundID         string
	Symbol          Symbol
	QuestionID      string
	AnswerKey       string
	Choice          string
	ClientElapsedMs int64
	Now             time.Time
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtQuestionStarted EventType = "QuestionStarted"
	EvtAnswerRecorded  EventType = "AnswerRecorded"
	EvtRoundTimedOut   EventType = "RoundTimedOut"
	EvtSymbolGained    EventType = "SymbolGained"
	EvtStreakBonus     EventType = "StreakBonus"
	EvtLifeLost        EventType = "LifeLost"
	EvtRoundResolved   EventType = "RoundResolved"
	EvtTurnAdvanced    EventType = "TurnAdvanced"
	EvtMatchFinished   EventType = "MatchFinished"
	EvtMatchCancelled  EventType = "MatchCancelled"
	EvtMatchSettled    EventType = "MatchSettled"
)

type Event struct {
	Type       EventType
	UID        string
	RoundID    string
	Symbol     Symbol
	QuestionID string
	Delta      int
}

// Apply validates cmd against m and returns the resulting events and document.
// m is never modified.
func Apply(m Match, cmd Command, rules Rules) ([]Event, Match, error) {
	if m.IsTerminal() && cmd.Type != CmdMarkSettled {
		return nil, m, terminalErr(cmd.Type)
	}

	next := m.Clone()
	var (
		events []Event
		err    error
	)

	switch cmd.Type {
	case CmdJoin:
		events, err = applyJoin(&next, cmd, rules)
	case CmdSpin:
		events, err = applySpin(&next, cmd)
	case CmdSubmitAnswer:
		events, err = applySubmit(&next, cmd, rules)
	case CmdTimeout:
		events, err = applyTimeout(&next, cmd, rules)
	case CmdContinue:
		events, err = applyContinue(&next, cmd, rules, false)
	case CmdFinalize:
		events, err = applyContinue(&next, cmd, rules, true)
	case CmdExpireInvite:
		events, err = applyExpire(&next, cmd, rules)
	case CmdStartSync:
		events, err = applyStartSync(&next, cmd, rules)
	case CmdSubmitSync:
		events, err = applySubmitSync(&next, cmd, rules)
	case CmdMarkSettled:
		events, err = applyMarkSettled(&next)
	case CmdAbandon:
		events, err = applyAbandon(&next, cmd, rules)
	default:
		return nil, m, ErrUnsupportedCommand
	}
	if err != nil {
		return nil, m, err
	}

	if !cmd.Now.IsZero() {
		next.UpdatedAt = cmd.Now
	}
	return events, next, nil
}

func terminalErr(t CommandType) error {
	switch t {
	case CmdJoin:
		return ErrInviteAlreadyUsed
	case CmdSubmitAnswer, CmdSubmitSync:
		return ErrRoundExpired
	case CmdTimeout, CmdContinue, CmdFinalize, CmdExpireInvite, CmdStartSync, CmdAbandon:
		return ErrAlreadyResolved
	default:
		return ErrMatchNotActive
	}
}

func applyJoin(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Status != StatusWaiting || len(m.Players) != 1 {
		return nil, ErrInviteAlreadyUsed
	}
	if m.Players[0] == cmd.Actor {
		return nil, ErrCannotJoinOwnInvite
	}

	host := m.Players[0]
	m.Players = append(m.Players, cmd.Actor)
	m.StateByUID[cmd.Actor] = newPlayerState(rules)
	m.Status = StatusActive
	m.Turn.Phase = PhaseSpin
	m.Turn.CurrentUID = host

	return []Event{
		{Type: EvtPlayerJoined, UID: cmd.Actor},
		{Type: EvtTurnAdvanced, UID: host},
	}, nil
}

// CheckSpin runs the spin preconditions without needing a drawn question.
func CheckSpin(m Match, actor string) error {
	if m.IsTerminal() {
		return ErrMatchNotActive
	}
	if m.Variant != VariantAsync {
		return ErrWrongVariant
	}
	if m.Status != StatusActive {
		return ErrMatchNotActive
	}
	if !m.IsPlayer(actor) {
		return ErrNotAPlayer
	}
	if m.Turn.Phase != PhaseSpin {
		return ErrWrongPhase
	}
	if m.Turn.CurrentUID != actor {
		return ErrNotYourTurn
	}
	return nil
}

func applySpin(m *Match, cmd Command) ([]Event, error) {
	if err := CheckSpin(*m, cmd.Actor); err != nil {
		return nil, err
	}
	if err := checkFreshQuestion(*m, cmd); err != nil {
		return nil, err
	}
	return startQuestion(m, cmd), nil
}

func applySubmit(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Variant != VariantAsync {
		return nil, ErrWrongVariant
	}
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}
	if !m.IsPlayer(cmd.Actor) {
		return nil, ErrNotAPlayer
	}

	t := m.Turn
	if cmd.QuestionID != "" && cmd.QuestionID != t.ActiveQuestion {
		return nil, ErrRoundExpired
	}
	switch t.Phase {
	case PhaseQuestionActive:
	case PhaseQuestionResult:
		return nil, ErrRoundExpired
	default:
		return nil, ErrWrongPhase
	}
	if t.CurrentUID != cmd.Actor {
		return nil, ErrNotYourTurn
	}
	if _, dup := t.Answers[cmd.Actor]; dup {
		return nil, ErrDuplicateAnswer
	}

	// Too late: the answer no longer counts, the round resolves as a timeout.
	if cmd.Now.After(deadline(*m, rules).Add(rules.SubmitGrace)) {
		return resolveTimeout(m, cmd.Now, rules), nil
	}
	if cmd.AnswerKey == "" {
		return nil, ErrMissingAnswerKey
	}

	recordAnswer(m, cmd, rules)
	events := []Event{{Type: EvtAnswerRecorded, UID: cmd.Actor, RoundID: t.RoundID, QuestionID: t.ActiveQuestion}}
	return append(events, resolveRound(m, cmd.Now, rules)...), nil
}

func applyTimeout(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}
	if m.Turn.Phase != PhaseQuestionActive {
		return nil, ErrAlreadyResolved
	}
	if cmd.RoundID != "" && cmd.RoundID != m.Turn.RoundID {
		return nil, ErrAlreadyResolved
	}
	// answers are accepted through the submit grace, so the timeout waits it out
	if cmd.Now.Before(deadline(*m, rules).Add(rules.SubmitGrace)) {
		return nil, ErrRoundNotExpired
	}
	return resolveTimeout(m, cmd.Now, rules), nil
}

// applyContinue applies the follow-up decided when the round resolved.
func applyContinue(m *Match, cmd Command, rules Rules, fromServer bool) ([]Event, error) {
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}
	if !fromServer && !m.IsPlayer(cmd.Actor) {
		return nil, ErrNotAPlayer
	}
	if m.Turn.Phase != PhaseQuestionResult {
		return nil, ErrAlreadyResolved
	}
	if fromServer {
		due, ok := ResultDeadline(*m, rules)
		if ok && cmd.Now.Before(due) {
			return nil, ErrDecisionNotDue
		}
	}
	return advance(m, cmd)
}

func advance(m *Match, cmd Command) ([]Event, error) {
	switch m.Turn.Next {
	case NextContinueStreak:
		// nothing left to ask on this symbol: the turn ends here
		if cmd.QuestionID == "" {
			return rotate(m), nil
		}
		if err := checkFreshQuestion(*m, cmd); err != nil {
			return nil, err
		}
		cmd.Symbol = m.Turn.ChallengeSymbol
		return startQuestion(m, cmd), nil
	default:
		return rotate(m), nil
	}
}

func applyExpire(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Status != StatusWaiting {
		return nil, ErrAlreadyResolved
	}
	if cmd.Now.Before(m.CreatedAt.Add(rules.InviteTTL)) {
		return nil, ErrInviteNotExpired
	}
	now := cmd.Now
	m.Status = StatusCancelled
	m.Turn.Phase = PhaseCancelled
	m.EndedReason = EndInviteExpired
	m.EndedAt = &now
	return []Event{{Type: EvtMatchCancelled}}, nil
}

// applyAbandon ends a match nobody moved out of SPIN in time. In an async
// duel the player who owed the spin forfeits; a sync duel ends without a winner.
func applyAbandon(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Status != StatusActive || m.Turn.Phase != PhaseSpin {
		return nil, ErrAlreadyResolved
	}
	due, ok := SpinDeadline(*m, rules)
	if !ok || cmd.Now.Before(due) {
		return nil, ErrSpinNotDue
	}

	winner := ""
	if m.Variant == VariantAsync {
		for _, uid := range m.Players {
			if uid != m.Turn.CurrentUID {
				winner = uid
			}
		}
	}
	finish(m, winner, EndAbandoned, cmd.Now)
	return []Event{{Type: EvtMatchFinished, UID: winner}}, nil
}

func applyMarkSettled(m *Match) ([]Event, error) {
	if m.Status != StatusFinished {
		return nil, ErrMatchNotFinished
	}
	if m.Settled {
		return nil, ErrAlreadySettled
	}
	m.Settled = true
	return []Event{{Type: EvtMatchSettled}}, nil
}

func checkFreshQuestion(m Match, cmd Command) error {
	if cmd.QuestionID == "" {
		return ErrMissingQuestion
	}
	if slices.Contains(m.Turn.UsedQuestionIDs, cmd.QuestionID) {
		return ErrQuestionAlreadyUsed
	}
	return nil
}
