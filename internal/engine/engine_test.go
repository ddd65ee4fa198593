package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newActiveMatch() Match {
	return NewRandomMatch("m1", "A", "B", "GENERAL", VariantAsync, t0, DefaultRules())
}

func mustApply(t *testing.T, m Match, cmd Command) ([]Event, Match) {
	t.Helper()
	events, next, err := Apply(m, cmd, DefaultRules())
	if err != nil {
		t.Fatalf("%s: unexpected err: %v", cmd.Type, err)
	}
	return events, next
}

func spin(actor, roundID string, sym Symbol, q string, at time.Time) Command {
	return Command{Type: CmdSpin, Actor: actor, RoundID: roundID, Symbol: sym, QuestionID: q, Now: at}
}

func answer(actor, choice, key string, at time.Time) Command {
	return Command{Type: CmdSubmitAnswer, Actor: actor, Choice: choice, AnswerKey: key, Now: at}
}

func TestJoinInvite(t *testing.T) {
	rules := DefaultRules()
	m := NewInviteMatch("m1", "A", "A1B2C3", VariantAsync, t0, rules)

	if _, _, err := Apply(m, Command{Type: CmdJoin, Actor: "A", Now: t0}, rules); !errors.Is(err, ErrCannotJoinOwnInvite) {
		t.Fatalf("host joining own invite: want ErrCannotJoinOwnInvite, got %v", err)
	}

	events, joined := mustApply(t, m, Command{Type: CmdJoin, Actor: "B", Now: t0.Add(time.Second)})
	if !ContainsEvent(events, EvtPlayerJoined) {
		t.Fatalf("expected PlayerJoined event, got %+v", events)
	}
	if joined.Status != StatusActive || joined.Turn.Phase != PhaseSpin {
		t.Fatalf("after join: want ACTIVE/SPIN, got %s/%s", joined.Status, joined.Turn.Phase)
	}
	if joined.Turn.CurrentUID != "A" {
		t.Fatalf("host spins first, got currentUid=%q", joined.Turn.CurrentUID)
	}
	if len(joined.Players) != 2 || joined.StateByUID["B"].Lives != 5 {
		t.Fatalf("joiner not initialised: %+v", joined.StateByUID)
	}

	if _, _, err := Apply(joined, Command{Type: CmdJoin, Actor: "C", Now: t0}, rules); !errors.Is(err, ErrInviteAlreadyUsed) {
		t.Fatalf("second joiner: want ErrInviteAlreadyUsed, got %v", err)
	}
}

func TestSpinPreconditions(t *testing.T) {
	active := newActiveMatch()
	_, inQuestion := mustApply(t, active, spin("A", "r1", "SPOR", "q1", t0))

	used := active.Clone()
	used.Turn.UsedQuestionIDs = []string{"q9"}

	cases := []struct {
		name    string
		setup   Match
		cmd     Command
		wantErr error
	}{
		{name: "not your turn", setup: active, cmd: spin("B", "r1", "SPOR", "q1", t0), wantErr: ErrNotYourTurn},
		{name: "not a player", setup: active, cmd: spin("C", "r1", "SPOR", "q1", t0), wantErr: ErrNotAPlayer},
		{name: "already spun", setup: inQuestion, cmd: spin("A", "r2", "SPOR", "q2", t0), wantErr: ErrWrongPhase},
		{name: "no question drawn", setup: active, cmd: spin("A", "r1", "SPOR", "", t0), wantErr: ErrMissingQuestion},
		{name: "question reused", setup: used, cmd: spin("A", "r1", "SPOR", "q9", t0), wantErr: ErrQuestionAlreadyUsed},
		{name: "legal spin", setup: active, cmd: spin("A", "r1", "SPOR", "q1", t0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(tc.setup, tc.cmd, DefaultRules())
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSpinStampsServerStart(t *testing.T) {
	_, m := mustApply(t, newActiveMatch(), spin("A", "r1", "SPOR", "q1", t0))

	if m.Turn.Phase != PhaseQuestionActive || m.Turn.ActiveQuestion != "q1" {
		t.Fatalf("want QUESTION_ACTIVE with q1, got %s/%q", m.Turn.Phase, m.Turn.ActiveQuestion)
	}
	if m.Turn.RoundStartAt == nil || !m.Turn.RoundStartAt.Equal(t0) {
		t.Fatalf("roundStartAt must be set with the question, got %v", m.Turn.RoundStartAt)
	}
	if m.Turn.RoundNo != 1 || m.Turn.RoundID != "r1" {
		t.Fatalf("round bookkeeping wrong: %+v", m.Turn)
	}
}

// A wins SPOR, earns the streak bonus on the follow-up, then B times out.
func TestStreakBonusAndTimeoutScenario(t *testing.T) {
	m := newActiveMatch()

	_, m = mustApply(t, m, spin("A", "r1", "SPOR", "q1", t0))
	_, m = mustApply(t, m, answer("A", "B", "B", t0.Add(2*time.Second)))

	a := m.StateByUID["A"]
	if !a.Holds("SPOR") || a.Trophies != 10 {
		t.Fatalf("after first correct: want SPOR and 10 trophies, got %+v", a)
	}
	if m.Turn.Streak != 1 || m.Turn.Next != NextContinueStreak {
		t.Fatalf("want streak=1 and a follow-up, got streak=%d next=%q", m.Turn.Streak, m.Turn.Next)
	}
	if m.Turn.Phase != PhaseQuestionResult || m.Turn.ActiveQuestion != "" {
		t.Fatalf("active question must clear on result, got %s/%q", m.Turn.Phase, m.Turn.ActiveQuestion)
	}

	// follow-up on the same symbol, same actor
	_, m = mustApply(t, m, Command{Type: CmdContinue, Actor: "A", RoundID: "r2", QuestionID: "q2", Now: t0.Add(4 * time.Second)})
	if m.Turn.CurrentUID != "A" || m.Turn.ChallengeSymbol != "SPOR" || m.Turn.Phase != PhaseQuestionActive {
		t.Fatalf("streak follow-up wrong: %+v", m.Turn)
	}

	events, m := mustApply(t, m, answer("A", "C", "C", t0.Add(6*time.Second)))
	if !ContainsEvent(events, EvtStreakBonus) {
		t.Fatalf("expected streak bonus, got %+v", events)
	}
	if got := m.StateByUID["A"].Trophies; got != 30 {
		t.Fatalf("want 10 + 2*10 trophies, got %d", got)
	}
	if m.Turn.Streak != 1 {
		t.Fatalf("streak stays at its max of 1, got %d", m.Turn.Streak)
	}
	if m.Turn.Next != NextRotate {
		t.Fatalf("bonus ends the turn, got next=%q", m.Turn.Next)
	}

	_, m = mustApply(t, m, Command{Type: CmdContinue, Actor: "B", Now: t0.Add(8 * time.Second)})
	if m.Turn.Phase != PhaseSpin || m.Turn.CurrentUID != "B" {
		t.Fatalf("want SPIN with B as actor, got %s/%s", m.Turn.Phase, m.Turn.CurrentUID)
	}
	if m.Turn.Streak != 0 {
		t.Fatalf("streak resets with the turn, got %d", m.Turn.Streak)
	}

	start := t0.Add(10 * time.Second)
	_, m = mustApply(t, m, spin("B", "r3", "TARIH", "q3", start))

	if _, _, err := Apply(m, Command{Type: CmdTimeout, RoundID: "r3", Now: start.Add(19 * time.Second)}, DefaultRules()); !errors.Is(err, ErrRoundNotExpired) {
		t.Fatalf("early timeout: want ErrRoundNotExpired, got %v", err)
	}

	// the deadline itself is still inside the submit grace
	if _, _, err := Apply(m, Command{Type: CmdTimeout, RoundID: "r3", Now: start.Add(20 * time.Second)}, DefaultRules()); !errors.Is(err, ErrRoundNotExpired) {
		t.Fatalf("timeout inside grace: want ErrRoundNotExpired, got %v", err)
	}

	events, m = mustApply(t, m, Command{Type: CmdTimeout, RoundID: "r3", Now: start.Add(21 * time.Second)})
	if !ContainsEvent(events, EvtRoundTimedOut) {
		t.Fatalf("expected RoundTimedOut, got %+v", events)
	}
	if got := m.StateByUID["B"].Lives; got != 4 {
		t.Fatalf("B loses exactly one life, got lives=%d", got)
	}

	// stale timer for the same round
	if _, _, err := Apply(m, Command{Type: CmdTimeout, RoundID: "r3", Now: start.Add(22 * time.Second)}, DefaultRules()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second timeout: want ErrAlreadyResolved, got %v", err)
	}

	if _, _, err := Apply(m, Command{Type: CmdFinalize, Now: start.Add(23 * time.Second)}, DefaultRules()); !errors.Is(err, ErrDecisionNotDue) {
		t.Fatalf("early finalize: want ErrDecisionNotDue, got %v", err)
	}
	_, m = mustApply(t, m, Command{Type: CmdFinalize, Now: start.Add(26 * time.Second)})
	if m.Turn.Phase != PhaseSpin || m.Turn.CurrentUID != "A" {
		t.Fatalf("after finalize: want SPIN for A, got %s/%s", m.Turn.Phase, m.Turn.CurrentUID)
	}
	if !reflect.DeepEqual(m.Turn.UsedQuestionIDs, []string{"q1", "q2", "q3"}) {
		t.Fatalf("usedQuestionIds: got %v", m.Turn.UsedQuestionIDs)
	}
}

func TestTimeoutAndLateSubmitResolveOnce(t *testing.T) {
	_, started := mustApply(t, newActiveMatch(), spin("A", "r1", "SPOR", "q1", t0))
	late := t0.Add(22 * time.Second)

	// timer first, then the late answer
	_, byTimer := mustApply(t, started, Command{Type: CmdTimeout, RoundID: "r1", Now: late})
	if _, after, err := Apply(byTimer, answer("A", "B", "B", late), DefaultRules()); !errors.Is(err, ErrRoundExpired) {
		t.Fatalf("late answer after timeout: want ErrRoundExpired, got %v", err)
	} else if !reflect.DeepEqual(after, byTimer) {
		t.Fatalf("losing writer must not change the document")
	}

	// late answer first, then the timer
	events, byAnswer := mustApply(t, started, answer("A", "B", "B", late))
	if !ContainsEvent(events, EvtRoundTimedOut) {
		t.Fatalf("answer past the deadline must resolve as a timeout, got %+v", events)
	}
	if _, _, err := Apply(byAnswer, Command{Type: CmdTimeout, RoundID: "r1", Now: late}, DefaultRules()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("timeout after resolution: want ErrAlreadyResolved, got %v", err)
	}

	if byTimer.StateByUID["A"].Lives != 4 || byAnswer.StateByUID["A"].Lives != 4 {
		t.Fatalf("exactly one life lost either way: %d / %d",
			byTimer.StateByUID["A"].Lives, byAnswer.StateByUID["A"].Lives)
	}
}

func TestAnswerWithinGraceCounts(t *testing.T) {
	_, m := mustApply(t, newActiveMatch(), spin("A", "r1", "SPOR", "q1", t0))
	_, m = mustApply(t, m, answer("A", "D", "D", t0.Add(20*time.Second+500*time.Millisecond)))

	rec := m.Turn.Answers["A"]
	if !rec.Correct || rec.TimedOut {
		t.Fatalf("answer inside the grace window should count, got %+v", rec)
	}
	if rec.ElapsedMs != 20000 {
		t.Fatalf("elapsed is clamped to the round duration, got %d", rec.ElapsedMs)
	}
}

func TestSubmitRejections(t *testing.T) {
	_, started := mustApply(t, newActiveMatch(), spin("A", "r1", "SPOR", "q1", t0))

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{name: "not your turn", cmd: answer("B", "A", "A", t0), wantErr: ErrNotYourTurn},
		{name: "stale question id", cmd: Command{Type: CmdSubmitAnswer, Actor: "A", QuestionID: "q0", Choice: "A", AnswerKey: "A", Now: t0}, wantErr: ErrRoundExpired},
		{name: "missing answer key", cmd: answer("A", "A", "", t0), wantErr: ErrMissingAnswerKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Apply(started, tc.cmd, DefaultRules()); !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}

	if _, _, err := Apply(newActiveMatch(), answer("A", "A", "A", t0), DefaultRules()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("answer during SPIN: want ErrWrongPhase, got %v", err)
	}
}

func TestCurrentUIDAlternatesEveryRound(t *testing.T) {
	m := newActiveMatch()
	at := t0
	var spinners []string

	for i := 0; i < 6; i++ {
		actor := m.Turn.CurrentUID
		spinners = append(spinners, actor)
		q := "q" + string(rune('a'+i))
		_, m = mustApply(t, m, spin(actor, "r"+q, "SPOR", q, at))

		// even rounds: correct twice (streak turn); odd rounds: a miss
		if i%2 == 0 {
			_, m = mustApply(t, m, answer(actor, "A", "A", at.Add(time.Second)))
			_, m = mustApply(t, m, Command{Type: CmdContinue, Actor: actor, RoundID: "x" + q, QuestionID: "x" + q, Now: at.Add(2 * time.Second)})
			_, m = mustApply(t, m, answer(actor, "A", "A", at.Add(3*time.Second)))
		} else {
			_, m = mustApply(t, m, answer(actor, "A", "B", at.Add(time.Second)))
		}
		if m.Status != StatusActive {
			t.Fatalf("match ended early: %s", m.EndedReason)
		}
		_, m = mustApply(t, m, Command{Type: CmdContinue, Actor: actor, Now: at.Add(4 * time.Second)})
		at = at.Add(5 * time.Second)
	}

	for i := 1; i < len(spinners); i++ {
		if spinners[i] == spinners[i-1] {
			t.Fatalf("round %d: %s spun twice in a row (%v)", i, spinners[i], spinners)
		}
	}
}

func TestMatchEnd(t *testing.T) {
	cases := []struct {
		name       string
		prepare    func(m *Match)
		choice     string
		wantWinner string
		wantReason EndReason
	}{
		{
			name: "last life lost",
			prepare: func(m *Match) {
				a := m.StateByUID["A"]
				a.Lives = 1
				m.StateByUID["A"] = a
			},
			choice:     "wrong",
			wantWinner: "B",
			wantReason: EndLivesExhausted,
		},
		{
			name: "fourth symbol collected",
			prepare: func(m *Match) {
				a := m.StateByUID["A"]
				a.Symbols = []Symbol{"TARIH", "BILIM", "SANAT"}
				m.StateByUID["A"] = a
			},
			choice:     "A",
			wantWinner: "A",
			wantReason: EndSymbolsComplete,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newActiveMatch()
			tc.prepare(&m)
			_, m = mustApply(t, m, spin("A", "r1", "SPOR", "q1", t0))
			events, m := mustApply(t, m, answer("A", tc.choice, "A", t0.Add(time.Second)))

			if !ContainsEvent(events, EvtMatchFinished) {
				t.Fatalf("expected MatchFinished, got %+v", events)
			}
			if m.Status != StatusFinished || m.Turn.Phase != PhaseMatchFinished {
				t.Fatalf("want FINISHED, got %s/%s", m.Status, m.Turn.Phase)
			}
			if m.WinnerUID != tc.wantWinner || m.EndedReason != tc.wantReason {
				t.Fatalf("want %s/%s, got %s/%s", tc.wantWinner, tc.wantReason, m.WinnerUID, m.EndedReason)
			}
			if m.Turn.ActiveQuestion != "" || m.EndedAt == nil {
				t.Fatalf("finished match must clear the question and stamp endedAt")
			}

			// nothing moves a finished match
			if _, _, err := Apply(m, Command{Type: CmdContinue, Actor: "A", Now: t0}, DefaultRules()); !errors.Is(err, ErrAlreadyResolved) {
				t.Fatalf("continue after finish: want ErrAlreadyResolved, got %v", err)
			}
		})
	}
}

func TestRoundLimitFallsBackToTieBreak(t *testing.T) {
	rules := DefaultRules()
	rules.RoundLimit = 1

	m := newActiveMatch()
	b := m.StateByUID["B"]
	b.Trophies = 50
	m.StateByUID["B"] = b

	_, m, _ = Apply(m, spin("A", "r1", "SPOR", "q1", t0), rules)
	_, m, err := Apply(m, answer("A", "A", "A", t0.Add(time.Second)), rules)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.Status != StatusFinished || m.WinnerUID != "B" || m.EndedReason != EndRoundLimit {
		t.Fatalf("want B by ROUND_LIMIT, got %s %s %s", m.Status, m.WinnerUID, m.EndedReason)
	}
}

func TestContestedLifeLoss(t *testing.T) {
	rules := DefaultRules()
	rules.LifeLoss = LifeLossContested

	m := newActiveMatch()
	a := m.StateByUID["A"]
	a.Symbols = []Symbol{"SPOR"}
	m.StateByUID["A"] = a

	_, m, _ = Apply(m, spin("A", "r1", "SPOR", "q1", t0), rules)
	_, m, err := Apply(m, answer("A", "A", "B", t0.Add(time.Second)), rules)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := m.StateByUID["A"]; got.Lives != 5 || got.WrongCount != 1 {
		t.Fatalf("missing a held symbol costs no life under CONTESTED, got %+v", got)
	}
}

func TestExpireInvite(t *testing.T) {
	rules := DefaultRules()
	m := NewInviteMatch("m1", "A", "A1B2C3", VariantAsync, t0, rules)

	if _, _, err := Apply(m, Command{Type: CmdExpireInvite, Now: t0.Add(time.Minute)}, rules); !errors.Is(err, ErrInviteNotExpired) {
		t.Fatalf("want ErrInviteNotExpired, got %v", err)
	}
	_, cancelled := mustApply(t, m, Command{Type: CmdExpireInvite, Now: t0.Add(rules.InviteTTL)})
	if cancelled.Status != StatusCancelled || cancelled.EndedReason != EndInviteExpired {
		t.Fatalf("want CANCELLED/INVITE_EXPIRED, got %s/%s", cancelled.Status, cancelled.EndedReason)
	}
	if _, _, err := Apply(cancelled, Command{Type: CmdJoin, Actor: "B", Now: t0}, rules); !errors.Is(err, ErrInviteAlreadyUsed) {
		t.Fatalf("join after expiry: want ErrInviteAlreadyUsed, got %v", err)
	}
}

func TestNextWakeCoversEveryWaitingPhase(t *testing.T) {
	rules := DefaultRules()
	m := newActiveMatch()

	at, ok := NextWake(m, rules)
	if !ok || !at.Equal(t0.Add(rules.SpinTimeout)) {
		t.Fatalf("SPIN wakes at the spin deadline, got %v/%v", at, ok)
	}

	_, m = mustApply(t, m, spin("A", "r1", "SPOR", "q1", t0.Add(time.Second)))
	at, _ = NextWake(m, rules)
	if want := t0.Add(time.Second + rules.RoundDuration + rules.SubmitGrace); !at.Equal(want) {
		t.Fatalf("QUESTION_ACTIVE wakes once the submit grace ran out: want %v, got %v", want, at)
	}

	rules.SpinTimeout = 0
	if _, ok := NextWake(newActiveMatch(), rules); ok {
		t.Fatalf("a zero spin timeout never wakes SPIN")
	}
}

func TestAbandonIdleSpin(t *testing.T) {
	rules := DefaultRules()
	m := newActiveMatch()

	if _, _, err := Apply(m, Command{Type: CmdAbandon, Now: t0.Add(time.Minute)}, rules); !errors.Is(err, ErrSpinNotDue) {
		t.Fatalf("early abandon: want ErrSpinNotDue, got %v", err)
	}

	events, done := mustApply(t, m, Command{Type: CmdAbandon, Now: t0.Add(rules.SpinTimeout)})
	if !ContainsEvent(events, EvtMatchFinished) {
		t.Fatalf("expected MatchFinished, got %+v", events)
	}
	if done.Status != StatusFinished || done.EndedReason != EndAbandoned {
		t.Fatalf("want FINISHED/ABANDONED, got %s/%s", done.Status, done.EndedReason)
	}
	if done.WinnerUID != "B" {
		t.Fatalf("the player who owed the spin forfeits, got winner=%q", done.WinnerUID)
	}
	if _, ok := NextWake(done, rules); !ok {
		t.Fatalf("an abandoned match still needs settling")
	}

	if _, _, err := Apply(done, Command{Type: CmdAbandon, Now: t0.Add(time.Hour)}, rules); !IsRaceLoss(err) {
		t.Fatalf("second abandon should be a race loss, got %v", err)
	}

	// a round in progress is not idle
	_, active := mustApply(t, m, spin("A", "r1", "SPOR", "q1", t0.Add(time.Minute)))
	if _, _, err := Apply(active, Command{Type: CmdAbandon, Now: t0.Add(time.Hour)}, rules); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("abandon during a question: want ErrAlreadyResolved, got %v", err)
	}

	syncDuel := NewRandomMatch("m2", "A", "B", "", VariantSync, t0, rules)
	_, ended := mustApply(t, syncDuel, Command{Type: CmdAbandon, Now: t0.Add(rules.SpinTimeout)})
	if ended.WinnerUID != "" || ended.EndedReason != EndAbandoned {
		t.Fatalf("an idle sync duel ends without a winner, got %q/%s", ended.WinnerUID, ended.EndedReason)
	}
}

func TestMarkSettled(t *testing.T) {
	m := newActiveMatch()
	if _, _, err := Apply(m, Command{Type: CmdMarkSettled}, DefaultRules()); !errors.Is(err, ErrMatchNotFinished) {
		t.Fatalf("want ErrMatchNotFinished, got %v", err)
	}
	m.Status = StatusFinished
	_, settled := mustApply(t, m, Command{Type: CmdMarkSettled})
	if !settled.Settled {
		t.Fatalf("expected settled flag")
	}
	if _, _, err := Apply(settled, Command{Type: CmdMarkSettled}, DefaultRules()); !IsRaceLoss(err) {
		t.Fatalf("second settle should be a race loss, got %v", err)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	_, m := mustApply(t, newActiveMatch(), spin("A", "r1", "SPOR", "q1", t0))
	before := m.Clone()

	_, _ = mustApply(t, m, answer("A", "A", "A", t0.Add(time.Second)))

	if !reflect.DeepEqual(before, m) {
		t.Fatalf("Apply modified its input")
	}
}

func TestAvailableSymbolsSkipsHeld(t *testing.T) {
	m := newActiveMatch()
	a := m.StateByUID["A"]
	a.Symbols = []Symbol{"SPOR", "TARIH"}
	m.StateByUID["A"] = a

	got := AvailableSymbols(m, "A", DefaultRules())
	for _, s := range got {
		if s == "SPOR" || s == "TARIH" {
			t.Fatalf("held symbol %s offered to spinner: %v", s, got)
		}
	}
	if len(got) != 4 {
		t.Fatalf("want 4 symbols left, got %v", got)
	}
}
