package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atc-pixel/yks-arena-sub001/internal/duel"
	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/matchmaking"
	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
	"github.com/atc-pixel/yks-arena-sub001/pkg/types"
)

var errBadBody = errors.New("malformed request body")

type api struct {
	duel  *duel.Service
	queue *matchmaking.Service
	clock clockwork.Clock
	log   *zap.Logger
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *api) createInvite(w http.ResponseWriter, r *http.Request) {
	var req types.CreateInviteRequest
	if err := decode(r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	inv, err := a.duel.CreateInvite(r.Context(), userID(r), req.Variant)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreateInviteResponse{Code: inv.Code, MatchID: inv.MatchID})
}

func (a *api) joinInvite(w http.ResponseWriter, r *http.Request) {
	var req types.JoinInviteRequest
	if err := decode(r, &req, false); err != nil || req.Code == "" {
		a.fail(w, r, errBadBody)
		return
	}
	res, err := a.duel.JoinInvite(r.Context(), req.Code, userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.JoinInviteResponse{MatchID: res.Match.ID})
}

func (a *api) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := a.duel.Get(r.Context(), chi.URLParam(r, "matchID"), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewMatchView(m, a.duel.Rules(), a.now()))
}

func (a *api) getQuestion(w http.ResponseWriter, r *http.Request) {
	q, m, err := a.duel.ActiveQuestion(r.Context(), chi.URLParam(r, "matchID"), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewQuestionView(q, m, a.duel.Rules(), a.now()))
}

func (a *api) spin(w http.ResponseWriter, r *http.Request) {
	info, err := a.duel.Spin(r.Context(), chi.URLParam(r, "matchID"), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spinResponse(info))
}

func (a *api) answer(w http.ResponseWriter, r *http.Request) {
	var req types.AnswerRequest
	if err := decode(r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.duel.SubmitAnswer(r.Context(), chi.URLParam(r, "matchID"), userID(r), toAnswer(req))
	a.transition(w, r, res, err)
}

func (a *api) continueTurn(w http.ResponseWriter, r *http.Request) {
	res, err := a.duel.Continue(r.Context(), chi.URLParam(r, "matchID"), userID(r))
	a.transition(w, r, res, err)
}

func (a *api) timeout(w http.ResponseWriter, r *http.Request) {
	var req types.TimeoutRequest
	if err := decode(r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "matchID")
	if !a.authorize(w, r, id) {
		return
	}
	res, err := a.duel.TimeoutQuestion(r.Context(), id, req.RoundID)
	a.transition(w, r, res, err)
}

func (a *api) finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	if !a.authorize(w, r, id) {
		return
	}
	res, err := a.duel.FinalizeDecision(r.Context(), id)
	a.transition(w, r, res, err)
}

func (a *api) syncStart(w http.ResponseWriter, r *http.Request) {
	info, err := a.duel.StartSyncDuelQuestion(r.Context(), chi.URLParam(r, "matchID"), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spinResponse(info))
}

func (a *api) syncAnswer(w http.ResponseWriter, r *http.Request) {
	var req types.AnswerRequest
	if err := decode(r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.duel.SubmitSyncDuelAnswer(r.Context(), chi.URLParam(r, "matchID"), userID(r), req.RoundID, toAnswer(req))
	a.transition(w, r, res, err)
}

func (a *api) syncTimeout(w http.ResponseWriter, r *http.Request) {
	var req types.TimeoutRequest
	if err := decode(r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "matchID")
	if !a.authorize(w, r, id) {
		return
	}
	res, err := a.duel.TimeoutSyncDuelQuestion(r.Context(), id, req.RoundID)
	a.transition(w, r, res, err)
}

func (a *api) syncFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	if !a.authorize(w, r, id) {
		return
	}
	res, err := a.duel.FinalizeSyncDuelDecision(r.Context(), id)
	a.transition(w, r, res, err)
}

func (a *api) enterQueue(w http.ResponseWriter, r *http.Request) {
	var req types.EnterQueueRequest
	if err := decode(r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	ticket, err := a.queue.EnterQueue(r.Context(), userID(r), req.Category, req.Variant)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (a *api) leaveQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.LeaveQueue(r.Context(), userID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// authorize guards the server-side transitions a client may nudge.
func (a *api) authorize(w http.ResponseWriter, r *http.Request, matchID string) bool {
	if _, err := a.duel.Get(r.Context(), matchID, userID(r)); err != nil {
		a.fail(w, r, err)
		return false
	}
	return true
}

func (a *api) transition(w http.ResponseWriter, r *http.Request, res duel.Result, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := types.NewMatchView(res.Match, a.duel.Rules(), a.now())
	writeJSON(w, http.StatusOK, types.TransitionResponse{
		MatchID: res.Match.ID,
		Status:  res.Match.Status,
		Phase:   res.Match.Turn.Phase,
		Applied: res.Applied,
		State:   &view,
	})
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSONError(w, status, code, err.Error())
}

func (a *api) now() time.Time { return a.clock.Now().UTC() }

func spinResponse(info duel.RoundInfo) types.SpinResponse {
	return types.SpinResponse{
		MatchID:    info.Match.ID,
		RoundID:    info.RoundID,
		Symbol:     info.Symbol,
		QuestionID: info.QuestionID,
		Applied:    info.Applied,
	}
}

func toAnswer(req types.AnswerRequest) duel.Answer {
	return duel.Answer{Choice: req.Answer, QuestionID: req.QuestionID, ClientElapsedMs: req.ClientElapsedMs}
}

// classify maps domain errors onto HTTP statuses.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, duel.ErrMatchNotFound):
		return http.StatusNotFound, "MATCH_NOT_FOUND"
	case errors.Is(err, duel.ErrInviteNotFound):
		return http.StatusNotFound, "INVITE_NOT_FOUND"
	case errors.Is(err, engine.ErrNotAPlayer):
		return http.StatusForbidden, "NOT_A_PLAYER"
	case errors.Is(err, engine.ErrInviteAlreadyUsed):
		return http.StatusConflict, "INVITE_ALREADY_USED"
	case errors.Is(err, duel.ErrAlreadyInMatch), errors.Is(err, matchmaking.ErrAlreadyInMatch):
		return http.StatusConflict, "ALREADY_IN_MATCH"
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return http.StatusConflict, "ALREADY_QUEUED"
	case errors.Is(err, engine.ErrNotYourTurn),
		errors.Is(err, engine.ErrWrongPhase),
		errors.Is(err, engine.ErrWrongVariant),
		errors.Is(err, engine.ErrMatchNotActive),
		errors.Is(err, engine.ErrCannotJoinOwnInvite),
		errors.Is(err, engine.ErrInviteNotExpired),
		errors.Is(err, engine.ErrRoundNotExpired),
		errors.Is(err, engine.ErrDecisionNotDue),
		errors.Is(err, engine.ErrSpinNotDue),
		errors.Is(err, engine.ErrQuestionAlreadyUsed),
		errors.Is(err, engine.ErrMatchNotFinished):
		return http.StatusConflict, "FAILED_PRECONDITION"
	case errors.Is(err, questions.ErrNoQuestionsLeft),
		errors.Is(err, matchmaking.ErrInsufficientEnergy),
		errors.Is(err, duel.ErrInviteCodeCollision):
		return http.StatusUnprocessableEntity, "RESOURCE_EXHAUSTED"
	case errors.Is(err, duel.ErrContention), errors.Is(err, profile.ErrContention):
		return http.StatusServiceUnavailable, "CONTENTION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// decode reads a JSON body. optional accepts an empty body.
func decode(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return errBadBody
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: code})
}
