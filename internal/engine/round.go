package engine

import (
	"slices"
	"time"
)

func startQuestion(m *Match, cmd Command) []Event {
	t := &m.Turn
	if cmd.Symbol != t.ChallengeSymbol {
		resetStreak(t)
	}

	now := cmd.Now
	t.RoundID = cmd.RoundID
	t.RoundNo++
	t.ChallengeSymbol = cmd.Symbol
	t.ActiveQuestion = cmd.QuestionID
	t.RoundStartAt = &now
	t.ResultAt = nil
	t.Next = NextNone
	t.Answers = map[string]AnswerRecord{}
	t.Phase = PhaseQuestionActive

	return []Event{{
		Type:       EvtQuestionStarted,
		UID:        cmd.Actor,
		RoundID:    t.RoundID,
		Symbol:     t.ChallengeSymbol,
		QuestionID: t.ActiveQuestion,
	}}
}

// recordAnswer stores the answer with the server-measured elapsed time.
// The client's own measurement is kept for reference only.
func recordAnswer(m *Match, cmd Command, rules Rules) {
	var elapsed time.Duration
	if m.Turn.RoundStartAt != nil {
		elapsed = cmd.Now.Sub(*m.Turn.RoundStartAt)
	}
	elapsed = min(max(elapsed, 0), rules.RoundDuration)

	if m.Turn.Answers == nil {
		m.Turn.Answers = map[string]AnswerRecord{}
	}
	m.Turn.Answers[cmd.Actor] = AnswerRecord{
		Choice:          cmd.Choice,
		Correct:         cmd.Choice == cmd.AnswerKey,
		ElapsedMs:       elapsed.Milliseconds(),
		ClientElapsedMs: cmd.ClientElapsedMs,
		At:              cmd.Now,
	}
}

func resolveTimeout(m *Match, now time.Time, rules Rules) []Event {
	if m.Turn.Answers == nil {
		m.Turn.Answers = map[string]AnswerRecord{}
	}
	events := []Event{{Type: EvtRoundTimedOut, RoundID: m.Turn.RoundID, QuestionID: m.Turn.ActiveQuestion}}
	for _, uid := range participants(*m) {
		if _, ok := m.Turn.Answers[uid]; ok {
			continue
		}
		m.Turn.Answers[uid] = AnswerRecord{
			TimedOut:  true,
			ElapsedMs: rules.RoundDuration.Milliseconds(),
			At:        now,
		}
	}
	return append(events, resolveRound(m, now, rules)...)
}

// resolveRound scores every participant's answer, closes the question and
// checks whether the match is over. It is the only place a round leaves
// QUESTION_ACTIVE.
func resolveRound(m *Match, now time.Time, rules Rules) []Event {
	t := &m.Turn
	var events []Event
	var correct []string

	for _, uid := range participants(*m) {
		rec := t.Answers[uid]
		st := m.StateByUID[uid]
		st.AnsweredCount++
		st.TotalElapsedMs += rec.ElapsedMs

		if rec.Correct {
			st.CorrectCount++
			correct = append(correct, uid)

			gain := rules.TrophiesPerCorrect
			if t.Streak == 1 && t.StreakUID == uid && !t.BonusApplied {
				gain *= max(rules.StreakMultiplier, 1)
				t.BonusApplied = true
				events = append(events, Event{Type: EvtStreakBonus, UID: uid, Symbol: t.ChallengeSymbol, Delta: gain})
			}
			st.Trophies += gain

			if !st.Holds(t.ChallengeSymbol) {
				st.Symbols = append(st.Symbols, t.ChallengeSymbol)
				events = append(events, Event{Type: EvtSymbolGained, UID: uid, Symbol: t.ChallengeSymbol})
			}
		} else {
			st.WrongCount++
			paysLife := rules.LifeLoss != LifeLossContested || !st.Holds(t.ChallengeSymbol)
			if paysLife && st.Lives > 0 {
				st.Lives--
				events = append(events, Event{Type: EvtLifeLost, UID: uid, Delta: -1})
			}
		}
		m.StateByUID[uid] = st
	}

	decideNext(m, correct)

	t.LastQuestion = t.ActiveQuestion
	if t.ActiveQuestion != "" && !slices.Contains(t.UsedQuestionIDs, t.ActiveQuestion) {
		t.UsedQuestionIDs = append(t.UsedQuestionIDs, t.ActiveQuestion)
	}
	t.ActiveQuestion = ""
	t.RoundStartAt = nil
	t.Phase = PhaseQuestionResult
	t.ResultAt = &now
	events = append(events, Event{Type: EvtRoundResolved, RoundID: t.RoundID, QuestionID: t.LastQuestion})

	if winner, reason, done := decide(*m, rules); done {
		finish(m, winner, reason, now)
		events = append(events, Event{Type: EvtMatchFinished, UID: winner})
	}
	return events
}

// decideNext moves the streak counter and picks the follow-up step.
// A first correct answer by the streak candidate earns one more question on
// the same symbol; the second one (bonus applied) or any miss ends the turn.
func decideNext(m *Match, correct []string) {
	t := &m.Turn

	candidate := ""
	switch m.Variant {
	case VariantSync:
		if len(correct) == 1 {
			candidate = correct[0]
		}
	default:
		if slices.Contains(correct, t.CurrentUID) {
			candidate = t.CurrentUID
		}
	}

	switch {
	case candidate == "":
		resetStreak(t)
		t.Next = NextRotate
	case t.Streak == 1 && t.StreakUID == candidate && t.BonusApplied:
		t.Next = NextRotate
	default:
		t.Streak = 1
		t.StreakUID = candidate
		t.BonusApplied = false
		t.Next = NextContinueStreak
	}
}

func decide(m Match, rules Rules) (string, EndReason, bool) {
	if len(m.Players) != 2 {
		return "", "", false
	}
	a, b := m.Players[0], m.Players[1]
	sa, sb := m.StateByUID[a], m.StateByUID[b]

	winA, whyA := winsAgainst(sa, sb, rules)
	winB, whyB := winsAgainst(sb, sa, rules)

	switch {
	case winA && !winB:
		return a, whyA, true
	case winB && !winA:
		return b, whyB, true
	case winA && winB:
		switch tieBreak(a, sa, b, sb) {
		case a:
			return a, whyA, true
		case b:
			return b, whyB, true
		default:
			return "", EndDraw, true
		}
	}

	if rules.RoundLimit > 0 && m.Turn.RoundNo >= rules.RoundLimit {
		if w := tieBreak(a, sa, b, sb); w != "" {
			return w, EndRoundLimit, true
		}
		return "", EndDraw, true
	}
	return "", "", false
}

func winsAgainst(self, opp PlayerMatchState, rules Rules) (bool, EndReason) {
	if rules.SymbolsToWin > 0 && len(self.Symbols) >= rules.SymbolsToWin {
		return true, EndSymbolsComplete
	}
	if opp.Lives <= 0 {
		return true, EndLivesExhausted
	}
	return false, ""
}

// tieBreak prefers more trophies, then less total answer time. Equal on both is a draw.
func tieBreak(a string, sa PlayerMatchState, b string, sb PlayerMatchState) string {
	switch {
	case sa.Trophies > sb.Trophies:
		return a
	case sb.Trophies > sa.Trophies:
		return b
	case sa.TotalElapsedMs < sb.TotalElapsedMs:
		return a
	case sb.TotalElapsedMs < sa.TotalElapsedMs:
		return b
	}
	return ""
}

func finish(m *Match, winner string, reason EndReason, now time.Time) {
	m.Status = StatusFinished
	m.Turn.Phase = PhaseMatchFinished
	m.Turn.Next = NextNone
	m.WinnerUID = winner
	m.EndedReason = reason
	m.EndedAt = &now
}

func resetStreak(t *Round) {
	t.Streak = 0
	t.StreakUID = ""
	t.BonusApplied = false
}
