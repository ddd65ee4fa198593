package hub

import (
	"context"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

// EnsureLobby returns the lobby for the match, opening one seeded with
// Initial if none is running.
type EnsureLobby struct {
	Initial lobby.Snapshot
	Reply   chan *lobby.Lobby
}

type RemoveLobby struct {
	MatchID string
}

// PublishMatch relays a committed snapshot to the match's lobby, if any.
type PublishMatch struct {
	Snapshot lobby.Snapshot
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (PublishMatch) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 256),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Publish hands a committed match to its lobby. It has the duel.CommitHook
// signature and must be registered after the write path, never before.
func (h *Hub) Publish(_ context.Context, m engine.Match, _ []engine.Event) {
	select {
	case h.inbox <- PublishMatch{Snapshot: lobby.Snapshot{Version: m.Version, Match: m.Clone()}}:
	case <-h.ctx.Done():
	}
}

// Lobby returns the running lobby for the snapshot's match, opening it if needed.
func (h *Hub) Lobby(ctx context.Context, initial lobby.Snapshot) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- EnsureLobby{Initial: initial, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, h.ctx.Err()
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.MatchID] // May be nil

			case EnsureLobby:
				id := msg.Initial.Match.ID
				if lb := h.lobbies[id]; lb != nil && !closed(lb) {
					// the caller may hold something newer than the lobby
					lb.Send(lobby.Publish{Snapshot: msg.Initial})
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Initial)
				h.lobbies[id] = lb
				msg.Reply <- lb

			case PublishMatch:
				id := msg.Snapshot.Match.ID
				lb := h.lobbies[id]
				if lb == nil {
					break
				}
				lb.Send(lobby.Publish{Snapshot: msg.Snapshot})
				if msg.Snapshot.Match.IsTerminal() || closed(lb) {
					delete(h.lobbies, id)
				}

			case RemoveLobby:
				if lb := h.lobbies[msg.MatchID]; lb != nil {
					lb.Send(lobby.Shutdown{})
				}
				delete(h.lobbies, msg.MatchID)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

func closed(lb *lobby.Lobby) bool {
	select {
	case <-lb.Done():
		return true
	default:
		return false
	}
}
