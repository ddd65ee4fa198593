package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/duel"
	"github.com/atc-pixel/yks-arena-sub001/internal/hub"
	"github.com/atc-pixel/yks-arena-sub001/internal/matchmaking"
	"github.com/atc-pixel/yks-arena-sub001/internal/ws"
)

type Deps struct {
	Duel  *duel.Service
	Queue *matchmaking.Service
	Hub   *hub.Hub
	Clock clockwork.Clock
	Log   *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	a := &api{duel: d.Duel, queue: d.Queue, clock: d.Clock, log: d.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Duel, d.Clock, d.Log))

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/matches/invite", a.createInvite)
		r.Post("/matches/invite/join", a.joinInvite)
		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", a.getMatch)
			r.Get("/question", a.getQuestion)
			r.Post("/spin", a.spin)
			r.Post("/answer", a.answer)
			r.Post("/continue", a.continueTurn)
			r.Post("/timeout", a.timeout)
			r.Post("/finalize", a.finalize)
		})
		r.Route("/sync/{matchID}", func(r chi.Router) {
			r.Post("/start", a.syncStart)
			r.Post("/answer", a.syncAnswer)
			r.Post("/timeout", a.syncTimeout)
			r.Post("/finalize", a.syncFinalize)
		})
		r.Post("/queue", a.enterQueue)
		r.Delete("/queue", a.leaveQueue)
	})
	return r
}
