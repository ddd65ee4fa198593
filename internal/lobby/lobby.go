// Package lobby fans committed match snapshots out to connected clients.
// One lobby goroutine per watched match owns the subscriber set; it never
// writes match state, it only relays what the duel service committed.
package lobby

import (
	"context"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

type Msg interface{ isLobbyMsg() }

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// Publish carries a snapshot that has already been committed.
type Publish struct{ Snapshot Snapshot }

func (Publish) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Snapshot struct {
	Version int64
	Match   engine.Match
}

type View struct {
	MatchID    string
	Version    int64
	NumClients int
}

type Lobby struct {
	matchID string
	inbox   chan Msg
	latest  Snapshot
	clients map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, initial Snapshot) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		matchID: initial.Match.ID,
		inbox:   make(chan Msg, 64),
		latest:  initial,
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				l.send(msg.ClientID, msg.Outbox, l.latest)

			case Leave:
				delete(l.clients, msg.ClientID)

			case Publish:
				// writers can commit faster than hooks arrive; never go backwards
				if msg.Snapshot.Version <= l.latest.Version {
					break
				}
				l.latest = msg.Snapshot
				l.broadcast(l.latest)
				if l.latest.Match.IsTerminal() {
					l.shutdown()
					return
				}

			case GetState:
				msg.Reply <- View{
					MatchID:    l.matchID,
					Version:    l.latest.Version,
					NumClients: len(l.clients),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		l.send(id, ch, snap)
	}
}

// send drops a client whose outbox is full.
func (l *Lobby) send(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		close(ch)
		delete(l.clients, id)
	}
}

// Send delivers msg unless the lobby already stopped.
func (l *Lobby) Send(msg Msg) bool {
	select {
	case l.inbox <- msg:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Inbox exposes the inbox so tests or the WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) MatchID() string { return l.matchID }
