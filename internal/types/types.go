package types

import pub "github.com/atc-pixel/yks-arena-sub001/pkg/types"

// ClientMessage is what a player may send over the match socket. The same
// operations exist over HTTP; the socket is a shortcut for clients that
// already hold a connection.
type ClientMessage struct {
	Type            string `json:"type"` // "Spin" | "Answer" | "Continue" | "SyncStart" | "SyncAnswer"
	RoundID         string `json:"roundId,omitempty"`
	QuestionID      string `json:"questionId,omitempty"`
	Answer          string `json:"answer,omitempty"`
	ClientElapsedMs int64  `json:"clientElapsedMs,omitempty"`
}

type ServerMessage struct {
	Type    string         `json:"type"` // "StateSnapshot" | "Error"
	Version int64          `json:"version,omitempty"`
	Match   *pub.MatchView `json:"match,omitempty"`
	Error   string         `json:"error,omitempty"`
}
