package engine

import (
	"maps"
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
)

type Mode string

const (
	ModeRandom Mode = "RANDOM"
	ModeInvite Mode = "INVITE"
)

// Variant selects who owns a round. ASYNC rounds belong to currentUid alone,
// SYNC rounds are answered by both players.
type Variant string

const (
	VariantAsync Variant = "ASYNC"
	VariantSync  Variant = "SYNC"
)

type Phase string

const (
	PhaseWaitingForJoin Phase = "WAITING_FOR_JOIN"
	PhaseSpin           Phase = "SPIN"
	PhaseQuestionActive Phase = "QUESTION_ACTIVE"
	PhaseQuestionResult Phase = "QUESTION_RESULT"
	PhaseMatchFinished  Phase = "MATCH_FINISHED"
	PhaseCancelled      Phase = "CANCELLED"
)

type Symbol string

// NextStep is decided when a round resolves and applied by continue/finalize.
type NextStep string

const (
	NextNone           NextStep = ""
	NextContinueStreak NextStep = "CONTINUE_STREAK"
	NextRotate         NextStep = "ROTATE"
)

type EndReason string

const (
	EndSymbolsComplete EndReason = "SYMBOLS_COMPLETE"
	EndLivesExhausted  EndReason = "LIVES_EXHAUSTED"
	EndRoundLimit      EndReason = "ROUND_LIMIT"
	EndDraw            EndReason = "DRAW"
	EndInviteExpired   EndReason = "INVITE_EXPIRED"
	EndAbandoned       EndReason = "ABANDONED"
)

type AnswerRecord struct {
	Choice          string    `json:"choice,omitempty"`
	Correct         bool      `json:"correct"`
	TimedOut        bool      `json:"timedOut,omitempty"`
	ElapsedMs       int64     `json:"elapsedMs"`
	ClientElapsedMs int64     `json:"clientElapsedMs,omitempty"`
	At              time.Time `json:"at"`
}

type Round struct {
	RoundID         string                  `json:"roundId,omitempty"`
	RoundNo         int                     `json:"roundNo"`
	CurrentUID      string                  `json:"currentUid,omitempty"`
	Phase           Phase                   `json:"phase"`
	ChallengeSymbol Symbol                  `json:"challengeSymbol,omitempty"`
	ActiveQuestion  string                  `json:"activeQuestionId,omitempty"`
	LastQuestion    string                  `json:"lastQuestionId,omitempty"`
	UsedQuestionIDs []string                `json:"usedQuestionIds"`
	Streak          int                     `json:"streak"`
	StreakUID       string                  `json:"streakUid,omitempty"`
	BonusApplied    bool                    `json:"bonusApplied,omitempty"`
	RoundStartAt    *time.Time              `json:"roundStartAt,omitempty"`
	ResultAt        *time.Time              `json:"resultAt,omitempty"`
	Next            NextStep                `json:"next,omitempty"`
	Answers         map[string]AnswerRecord `json:"answers,omitempty"`
}

type PlayerMatchState struct {
	Lives          int      `json:"lives"`
	Trophies       int      `json:"trophies"`
	Symbols        []Symbol `json:"symbols"`
	WrongCount     int      `json:"wrongCount"`
	CorrectCount   int      `json:"correctCount"`
	AnsweredCount  int      `json:"answeredCount"`
	TotalElapsedMs int64    `json:"totalElapsedMs"`
}

func (p PlayerMatchState) Holds(s Symbol) bool { return slices.Contains(p.Symbols, s) }

type Match struct {
	ID          string                      `json:"id"`
	Status      Status                      `json:"status"`
	Mode        Mode                        `json:"mode"`
	Variant     Variant                     `json:"variant"`
	Category    string                      `json:"category,omitempty"`
	InviteCode  string                      `json:"inviteCode,omitempty"`
	Players     []string                    `json:"players"`
	Turn        Round                       `json:"turn"`
	StateByUID  map[string]PlayerMatchState `json:"stateByUid"`
	WinnerUID   string                      `json:"winnerUid,omitempty"`
	EndedReason EndReason                   `json:"endedReason,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
	EndedAt     *time.Time                  `json:"endedAt,omitempty"`
	Settled     bool                        `json:"settled,omitempty"`
	Version     int64                       `json:"version"`
}

// Clone returns a deep copy so reducers never write through to the caller's document.
func (m Match) Clone() Match {
	c := m
	c.Players = slices.Clone(m.Players)
	c.Turn.UsedQuestionIDs = slices.Clone(m.Turn.UsedQuestionIDs)
	c.Turn.Answers = maps.Clone(m.Turn.Answers)
	c.Turn.RoundStartAt = cloneTime(m.Turn.RoundStartAt)
	c.Turn.ResultAt = cloneTime(m.Turn.ResultAt)
	c.EndedAt = cloneTime(m.EndedAt)
	if m.StateByUID != nil {
		c.StateByUID = make(map[string]PlayerMatchState, len(m.StateByUID))
		for uid, st := range m.StateByUID {
			st.Symbols = slices.Clone(st.Symbols)
			c.StateByUID[uid] = st
		}
	}
	return c
}

func (m Match) IsTerminal() bool {
	return m.Status == StatusFinished || m.Status == StatusCancelled
}

func (m Match) IsPlayer(uid string) bool { return slices.Contains(m.Players, uid) }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
