package engine

import "errors"

var ErrMissingRound = errors.New("command carries no round id")

// Synchronized duel: both players answer the same question, the round closes
// once both answered or the deadline passed.

func applyStartSync(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Variant != VariantSync {
		return nil, ErrWrongVariant
	}
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}
	if !m.IsPlayer(cmd.Actor) {
		return nil, ErrNotAPlayer
	}

	switch m.Turn.Phase {
	case PhaseQuestionActive:
		return nil, ErrRoundInProgress
	case PhaseQuestionResult:
		if m.Turn.Next == NextContinueStreak {
			return advance(m, cmd)
		}
		if err := checkFreshQuestion(*m, cmd); err != nil {
			return nil, err
		}
		events := rotate(m)
		return append(events, startQuestion(m, cmd)...), nil
	case PhaseSpin:
		if err := checkFreshQuestion(*m, cmd); err != nil {
			return nil, err
		}
		return startQuestion(m, cmd), nil
	}
	return nil, ErrWrongPhase
}

func applySubmitSync(m *Match, cmd Command, rules Rules) ([]Event, error) {
	if m.Variant != VariantSync {
		return nil, ErrWrongVariant
	}
	if m.Status != StatusActive {
		return nil, ErrMatchNotActive
	}
	if !m.IsPlayer(cmd.Actor) {
		return nil, ErrNotAPlayer
	}
	if cmd.RoundID == "" {
		return nil, ErrMissingRound
	}

	t := m.Turn
	if t.Phase != PhaseQuestionActive || cmd.RoundID != t.RoundID {
		return nil, ErrRoundExpired
	}
	if _, dup := t.Answers[cmd.Actor]; dup {
		return nil, ErrDuplicateAnswer
	}
	if cmd.Now.After(deadline(*m, rules).Add(rules.SubmitGrace)) {
		return resolveTimeout(m, cmd.Now, rules), nil
	}
	if cmd.AnswerKey == "" {
		return nil, ErrMissingAnswerKey
	}

	recordAnswer(m, cmd, rules)
	events := []Event{{Type: EvtAnswerRecorded, UID: cmd.Actor, RoundID: t.RoundID, QuestionID: t.ActiveQuestion}}

	for _, uid := range m.Players {
		if _, ok := m.Turn.Answers[uid]; !ok {
			return events, nil
		}
	}
	return append(events, resolveRound(m, cmd.Now, rules)...), nil
}

// CheckStartSync runs the start preconditions without a drawn question.
func CheckStartSync(m Match, actor string) error {
	if m.IsTerminal() {
		return ErrAlreadyResolved
	}
	if m.Variant != VariantSync {
		return ErrWrongVariant
	}
	if m.Status != StatusActive {
		return ErrMatchNotActive
	}
	if !m.IsPlayer(actor) {
		return ErrNotAPlayer
	}
	switch m.Turn.Phase {
	case PhaseSpin, PhaseQuestionResult:
		return nil
	case PhaseQuestionActive:
		return ErrRoundInProgress
	}
	return ErrWrongPhase
}
