package types

import (
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
)

// MatchView is what clients see of a match. Timing fields are computed from
// server time; the client's countdown is only a display.
type MatchView struct {
	ID          string                             `json:"id"`
	Version     int64                              `json:"version"`
	Status      engine.Status                      `json:"status"`
	Mode        engine.Mode                        `json:"mode"`
	Variant     engine.Variant                     `json:"variant"`
	Category    string                             `json:"category,omitempty"`
	InviteCode  string                             `json:"inviteCode,omitempty"`
	Players     []string                           `json:"players"`
	Turn        TurnView                           `json:"turn"`
	StateByUID  map[string]engine.PlayerMatchState `json:"stateByUid"`
	WinnerUID   string                             `json:"winnerUid,omitempty"`
	EndedReason engine.EndReason                   `json:"endedReason,omitempty"`
	CreatedAt   time.Time                          `json:"createdAt"`
	EndedAt     *time.Time                         `json:"endedAt,omitempty"`
	ServerTime  time.Time                          `json:"serverTime"`
}

type TurnView struct {
	RoundID          string                `json:"roundId,omitempty"`
	RoundNo          int                   `json:"roundNo"`
	CurrentUID       string                `json:"currentUid,omitempty"`
	Phase            engine.Phase          `json:"phase"`
	ChallengeSymbol  engine.Symbol         `json:"challengeSymbol,omitempty"`
	ActiveQuestionID string                `json:"activeQuestionId,omitempty"`
	LastQuestionID   string                `json:"lastQuestionId,omitempty"`
	Streak           int                   `json:"streak"`
	StreakUID        string                `json:"streakUid,omitempty"`
	BonusApplied     bool                  `json:"bonusApplied,omitempty"`
	Next             engine.NextStep       `json:"next,omitempty"`
	DeadlineAt       *time.Time            `json:"deadlineAt,omitempty"`
	RemainingMs      int64                 `json:"remainingMs,omitempty"`
	ResultDeadlineAt *time.Time            `json:"resultDeadlineAt,omitempty"`
	Answers          map[string]AnswerView `json:"answers,omitempty"`
}

// AnswerView hides what was chosen while the round is still open.
type AnswerView struct {
	Answered  bool   `json:"answered"`
	Choice    string `json:"choice,omitempty"`
	Correct   *bool  `json:"correct,omitempty"`
	TimedOut  bool   `json:"timedOut,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

func NewMatchView(m engine.Match, rules engine.Rules, now time.Time) MatchView {
	v := MatchView{
		ID:          m.ID,
		Version:     m.Version,
		Status:      m.Status,
		Mode:        m.Mode,
		Variant:     m.Variant,
		Category:    m.Category,
		Players:     m.Players,
		StateByUID:  m.StateByUID,
		WinnerUID:   m.WinnerUID,
		EndedReason: m.EndedReason,
		CreatedAt:   m.CreatedAt,
		EndedAt:     m.EndedAt,
		ServerTime:  now,
	}
	if m.Status == engine.StatusWaiting {
		v.InviteCode = m.InviteCode
	}

	t := m.Turn
	v.Turn = TurnView{
		RoundID:          t.RoundID,
		RoundNo:          t.RoundNo,
		CurrentUID:       t.CurrentUID,
		Phase:            t.Phase,
		ChallengeSymbol:  t.ChallengeSymbol,
		ActiveQuestionID: t.ActiveQuestion,
		LastQuestionID:   t.LastQuestion,
		Streak:           t.Streak,
		StreakUID:        t.StreakUID,
		BonusApplied:     t.BonusApplied,
		Next:             t.Next,
	}
	if at, ok := engine.Deadline(m, rules); ok {
		v.Turn.DeadlineAt = &at
		v.Turn.RemainingMs = max(at.Sub(now).Milliseconds(), 0)
	}
	if at, ok := engine.ResultDeadline(m, rules); ok {
		v.Turn.ResultDeadlineAt = &at
	}

	open := t.Phase == engine.PhaseQuestionActive
	if len(t.Answers) > 0 {
		v.Turn.Answers = make(map[string]AnswerView, len(t.Answers))
		for uid, rec := range t.Answers {
			av := AnswerView{Answered: true}
			if !open {
				correct := rec.Correct
				av.Choice = rec.Choice
				av.Correct = &correct
				av.TimedOut = rec.TimedOut
				av.ElapsedMs = rec.ElapsedMs
			}
			v.Turn.Answers[uid] = av
		}
	}
	return v
}

type QuestionView struct {
	ID       string             `json:"id"`
	Category engine.Symbol      `json:"category"`
	Prompt   string             `json:"prompt"`
	Choices  []questions.Choice `json:"choices"`
	RoundID  string             `json:"roundId"`
	// DeadlineAt is the round deadline; answers a moment later still count.
	DeadlineAt  *time.Time `json:"deadlineAt,omitempty"`
	RemainingMs int64      `json:"remainingMs"`
}

// NewQuestionView drops the answer key.
func NewQuestionView(q questions.Question, m engine.Match, rules engine.Rules, now time.Time) QuestionView {
	v := QuestionView{ID: q.ID, Category: q.Category, Prompt: q.Prompt, Choices: q.Choices, RoundID: m.Turn.RoundID}
	if at, ok := engine.Deadline(m, rules); ok {
		v.DeadlineAt = &at
		v.RemainingMs = max(at.Sub(now).Milliseconds(), 0)
	}
	return v
}
