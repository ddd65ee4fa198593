package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/duel"
	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/hub"
	"github.com/atc-pixel/yks-arena-sub001/internal/lobby"
	"github.com/atc-pixel/yks-arena-sub001/internal/types"
	pub "github.com/atc-pixel/yks-arena-sub001/pkg/types"
)

const writeTimeout = 3 * time.Second

type handler struct {
	hub   *hub.Hub
	duel  *duel.Service
	clock clockwork.Clock
	log   *zap.Logger
}

// Handler streams committed snapshots of one match to one of its players.
// Query: ?matchId=...&uid=...
func Handler(h *hub.Hub, svc *duel.Service, clock clockwork.Clock, log *zap.Logger) http.HandlerFunc {
	hd := &handler{hub: h, duel: svc, clock: clock, log: log}
	return hd.serve
}

func (hd *handler) serve(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("matchId")
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		uid = r.Header.Get("X-User-ID")
	}
	if matchID == "" || uid == "" {
		http.Error(w, "missing matchId or uid", http.StatusBadRequest)
		return
	}

	m, err := hd.duel.Get(r.Context(), matchID, uid)
	switch {
	case errors.Is(err, duel.ErrMatchNotFound):
		http.Error(w, "match not found", http.StatusNotFound)
		return
	case errors.Is(err, engine.ErrNotAPlayer):
		http.Error(w, "not a player in this match", http.StatusForbidden)
		return
	case err != nil:
		hd.log.Error("ws load match", zap.String("matchId", matchID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	initial := lobby.Snapshot{Version: m.Version, Match: m}

	// a finished match gets its final state once and nothing else
	if m.IsTerminal() {
		_ = hd.write(r.Context(), conn, initial)
		return
	}

	lb, err := hd.hub.Lobby(r.Context(), initial)
	if err != nil {
		return
	}

	out := make(chan lobby.Snapshot, 8)
	clientID := uuid.NewString()
	if !lb.Send(lobby.Join{ClientID: clientID, Outbox: out}) {
		_ = hd.write(r.Context(), conn, initial)
		return
	}
	defer lb.Send(lobby.Leave{ClientID: clientID})

	log := hd.log.With(zap.String("matchId", matchID), zap.String("uid", uid), zap.String("client", clientID))
	log.Debug("ws joined")

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "stream ended")
		for {
			select {
			case snap, ok := <-out:
				if !ok {
					// lobby closed us: match over or we fell behind
					return
				}
				if err := hd.write(writeCtx, conn, snap); err != nil {
					return
				}
			case <-lb.Done():
				for {
					select {
					case snap, ok := <-out:
						if !ok {
							return
						}
						_ = hd.write(writeCtx, conn, snap)
					default:
						return
					}
				}
			case <-writeCtx.Done():
				return
			}
		}
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("ws closed by client")
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			hd.writeError(r.Context(), conn, "bad json")
			continue
		}
		if err := hd.dispatch(r.Context(), matchID, uid, cm); err != nil {
			hd.writeError(r.Context(), conn, err.Error())
		}
	}
}

// dispatch runs a client command. Its effect reaches the client through the
// lobby like everyone else's, so only failures are answered directly.
func (hd *handler) dispatch(ctx context.Context, matchID, uid string, cm types.ClientMessage) error {
	a := duel.Answer{Choice: cm.Answer, QuestionID: cm.QuestionID, ClientElapsedMs: cm.ClientElapsedMs}
	var err error
	switch cm.Type {
	case "Spin":
		_, err = hd.duel.Spin(ctx, matchID, uid)
	case "Answer":
		_, err = hd.duel.SubmitAnswer(ctx, matchID, uid, a)
	case "Continue":
		_, err = hd.duel.Continue(ctx, matchID, uid)
	case "SyncStart":
		_, err = hd.duel.StartSyncDuelQuestion(ctx, matchID, uid)
	case "SyncAnswer":
		_, err = hd.duel.SubmitSyncDuelAnswer(ctx, matchID, uid, cm.RoundID, a)
	default:
		return errors.New("unknown type")
	}
	return err
}

func (hd *handler) write(ctx context.Context, conn *websocket.Conn, snap lobby.Snapshot) error {
	view := pub.NewMatchView(snap.Match, hd.duel.Rules(), hd.clock.Now().UTC())
	msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, Match: &view}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (hd *handler) writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: reason})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
