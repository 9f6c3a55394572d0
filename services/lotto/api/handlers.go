// Package api exposes the lottery engine over HTTP.
package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lottoledger/lotto-engine/internal/httputil"
	"github.com/lottoledger/lotto-engine/internal/logging"
	"github.com/lottoledger/lotto-engine/services/lotto"
)

// Handlers routes HTTP requests to the engine. Command routes read the
// caller address from the header set by the auth middleware; query routes
// are unauthenticated.
type Handlers struct {
	engine *lotto.Service
	log    *logging.Logger
}

// New creates the handler set.
func New(engine *lotto.Service, log *logging.Logger) *Handlers {
	return &Handlers{engine: engine, log: log.WithField("component", "api")}
}

// Register mounts all routes on r. Command routes are wrapped with the
// given middleware chain (auth, rate limiting); query routes are not.
func (h *Handlers) Register(r *mux.Router, commandMiddleware ...mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/v1/config", h.GetConfig).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds", h.ListRounds).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds/{id}", h.GetRound).Methods(http.MethodGet)

	cmd := r.NewRoute().Subrouter()
	cmd.Use(commandMiddleware...)
	cmd.HandleFunc("/v1/config", h.InitConfig).Methods(http.MethodPost)
	cmd.HandleFunc("/v1/config", h.SetConfig).Methods(http.MethodPut)
	cmd.HandleFunc("/v1/rounds", h.OpenRound).Methods(http.MethodPost)
	cmd.HandleFunc("/v1/rounds/{id}/tickets", h.BuyTicket).Methods(http.MethodPost)
	cmd.HandleFunc("/v1/callbacks/randomness", h.RandomnessCallback).Methods(http.MethodPost)
	cmd.HandleFunc("/v1/withdrawals", h.Withdraw).Methods(http.MethodPost)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initConfigRequest struct {
	Manager                   string `json:"manager"`
	OracleAddress             string `json:"oracle_address"`
	CommunityPool             string `json:"community_pool"`
	ProtocolCommissionPercent int    `json:"protocol_commission_percent"`
	CreatorCommissionPercent  int    `json:"creator_commission_percent"`
}

// InitConfig performs one-time genesis of the engine configuration.
func (h *Handlers) InitConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireCallerAddress(w, r); !ok {
		return
	}
	var req initConfigRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.engine.InitConfig(r.Context(), lotto.Config{
		Manager:                   req.Manager,
		OracleAddress:             req.OracleAddress,
		CommunityPool:             req.CommunityPool,
		ProtocolCommissionPercent: req.ProtocolCommissionPercent,
		CreatorCommissionPercent:  req.CreatorCommissionPercent,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cfg)
}

// GetConfig returns the current configuration.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.GetConfig(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// SetConfig applies a partial configuration update. Manager only.
func (h *Handlers) SetConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := httputil.RequireCallerAddress(w, r)
	if !ok {
		return
	}
	var upd lotto.ConfigUpdate
	if !httputil.DecodeJSON(w, r, &upd) {
		return
	}
	cfg, err := h.engine.SetConfig(r.Context(), caller, upd)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// OpenRound creates a new round on behalf of the caller.
func (h *Handlers) OpenRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := httputil.RequireCallerAddress(w, r)
	if !ok {
		return
	}
	var in lotto.OpenRoundInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	round, err := h.engine.OpenRound(r.Context(), caller, in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, round)
}

type buyTicketRequest struct {
	Funds []lotto.Coin `json:"funds"`
}

// BuyTicket registers the caller as a participant in the round.
func (h *Handlers) BuyTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := httputil.RequireCallerAddress(w, r)
	if !ok {
		return
	}
	roundID, ok := parseRoundID(w, r)
	if !ok {
		return
	}
	var req buyTicketRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	round, err := h.engine.BuyTicket(r.Context(), caller, roundID, req.Funds)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, round)
}

type randomnessCallbackRequest struct {
	JobID       string    `json:"job_id"`
	Randomness  string    `json:"randomness"`
	PublishedAt time.Time `json:"published_at"`
}

// RandomnessCallback receives an oracle fulfilment and settles the round.
// The randomness is hex encoded on the wire.
func (h *Handlers) RandomnessCallback(w http.ResponseWriter, r *http.Request) {
	caller, ok := httputil.RequireCallerAddress(w, r)
	if !ok {
		return
	}
	var req randomnessCallbackRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	randomness, err := hex.DecodeString(req.Randomness)
	if err != nil {
		httputil.BadRequest(w, "randomness must be hex encoded")
		return
	}
	result, err := h.engine.SettleCallback(r.Context(), caller, lotto.RandomnessCallback{
		JobID:       req.JobID,
		Randomness:  randomness,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type withdrawRequest struct {
	Destination string `json:"destination"`
	Denom       string `json:"denom"`
}

// Withdraw drains the engine's free balance to a destination. Manager only.
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := httputil.RequireCallerAddress(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.engine.WithdrawAll(r.Context(), caller, req.Destination, req.Denom)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetRound returns a round with derived expiry and settlement flags.
func (h *Handlers) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := parseRoundID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.engine.GetRound(r.Context(), roundID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

type listRoundsResponse struct {
	Rounds []lotto.Round `json:"rounds"`
}

// ListRounds pages through rounds by id. Query parameters: order (asc or
// desc), start_after (exclusive cursor), limit.
func (h *Handlers) ListRounds(w http.ResponseWriter, r *http.Request) {
	opts := lotto.ListOptions{}

	switch order := r.URL.Query().Get("order"); order {
	case "", "asc":
		opts.Order = lotto.OrderAscending
	case "desc":
		opts.Order = lotto.OrderDescending
	default:
		httputil.BadRequest(w, "order must be asc or desc")
		return
	}

	if raw := r.URL.Query().Get("start_after"); raw != "" {
		cursor, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "start_after must be a round id")
			return
		}
		opts.StartAfter = &cursor
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	rounds, err := h.engine.ListRounds(r.Context(), opts)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listRoundsResponse{Rounds: rounds})
}

func parseRoundID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		httputil.BadRequest(w, "round id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine sentinel errors onto HTTP statuses. Unknown
// errors are logged and reported as 500 without leaking internals.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lotto.ErrRoundNotFound),
		errors.Is(err, lotto.ErrConfigNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, lotto.ErrUnauthorized),
		errors.Is(err, lotto.ErrUnauthorizedCallback):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, lotto.ErrConfigExists),
		errors.Is(err, lotto.ErrAlreadySettled):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, lotto.ErrRoundClosed),
		errors.Is(err, lotto.ErrNoParticipants):
		httputil.UnprocessableEntity(w, err.Error())
	case errors.Is(err, lotto.ErrInvalidCommission),
		errors.Is(err, lotto.ErrInvalidAddress),
		errors.Is(err, lotto.ErrInvalidAmount),
		errors.Is(err, lotto.ErrNoFunds),
		errors.Is(err, lotto.ErrInvalidPayment),
		errors.Is(err, lotto.ErrInvalidRandomness),
		errors.Is(err, lotto.ErrMalformedCallback):
		httputil.BadRequest(w, err.Error())
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		httputil.InternalError(w, "internal error")
	}
}
