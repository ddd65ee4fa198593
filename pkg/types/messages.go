package types

import "github.com/atc-pixel/yks-arena-sub001/internal/engine"

// HTTP request and response bodies.

type CreateInviteRequest struct {
	Variant engine.Variant `json:"variant,omitempty"`
}

type CreateInviteResponse struct {
	Code    string `json:"code"`
	MatchID string `json:"matchId"`
}

type JoinInviteRequest struct {
	Code string `json:"code"`
}

type JoinInviteResponse struct {
	MatchID string `json:"matchId"`
}

type SpinResponse struct {
	MatchID    string        `json:"matchId"`
	RoundID    string        `json:"roundId"`
	Symbol     engine.Symbol `json:"symbol"`
	QuestionID string        `json:"questionId"`
	Applied    bool          `json:"applied"`
}

type AnswerRequest struct {
	RoundID         string `json:"roundId,omitempty"`
	QuestionID      string `json:"questionId,omitempty"`
	Answer          string `json:"answer"`
	ClientElapsedMs int64  `json:"clientElapsedMs,omitempty"`
}

type TimeoutRequest struct {
	RoundID string `json:"roundId,omitempty"`
}

// TransitionResponse is returned by every operation that may lose a race.
// Applied false means someone else already moved the match; State is current.
type TransitionResponse struct {
	MatchID string        `json:"matchId"`
	Status  engine.Status `json:"status"`
	Phase   engine.Phase  `json:"phase"`
	Applied bool          `json:"applied"`
	State   *MatchView    `json:"state,omitempty"`
}

type EnterQueueRequest struct {
	Category string         `json:"category"`
	Variant  engine.Variant `json:"variant,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
