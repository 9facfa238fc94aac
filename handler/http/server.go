// Package http exposes the daemon's public surface: contribution submission,
// calculation and claim triggers, the revealed-royalty read API and pool
// funding. Oracle callbacks do not arrive here; they are wired straight into
// the reveal engine by the daemon.
package http

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/log"
	"github.com/veilpay/veilpay/metrics"
	"github.com/veilpay/veilpay/reveal"
)

type handler struct {
	engine *reveal.Engine
	store  ledger.Store
	log    log.Logger
}

// New creates the HTTP handler for the public API.
func New(l log.Logger, engine *reveal.Engine, store ledger.Store) http.Handler {
	h := &handler{engine: engine, store: store, log: l.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/contributions", h.submitContribution)
	r.Post("/contributions/{id}/calculate", h.requestCalculation)
	r.Get("/royalty/{id}", h.revealedRoyalty)
	r.Post("/claims/{key}", h.requestClaim)
	r.Post("/pool/deposit", h.depositToPool)
	r.Get("/health", h.health)
	return r
}

type submitRequest struct {
	ComputeHours   string `json:"compute_hours"`
	DataQuality    string `json:"data_quality"`
	ModelImpact    string `json:"model_impact"`
	ContributorKey string `json:"contributor_key"`
}

type submitResponse struct {
	ContributionID uint64 `json:"contribution_id"`
}

type royaltyResponse struct {
	ContributionID uint64 `json:"contribution_id"`
	ShareBps       uint64 `json:"share_bps"`
	Payment        uint64 `json:"payment"`
	Revealed       bool   `json:"revealed"`
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type depositResponse struct {
	Balance uint64 `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) submitContribution(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	key, err := ledger.KeyFromHex(req.ContributorKey)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	m, err := decodeMetrics(req)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	id, err := h.engine.Submit(r.Context(), m, key)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, submitResponse{ContributionID: id})
}

func decodeMetrics(req submitRequest) (ledger.EncryptedMetrics, error) {
	var m ledger.EncryptedMetrics
	for _, field := range []struct {
		name string
		in   string
		out  *ledger.Ciphertext
	}{
		{"compute_hours", req.ComputeHours, &m.ComputeHours},
		{"data_quality", req.DataQuality, &m.DataQuality},
		{"model_impact", req.ModelImpact, &m.ModelImpact},
	} {
		if field.in == "" {
			return m, fmt.Errorf("missing %s ciphertext", field.name)
		}
		buff, err := hex.DecodeString(field.in)
		if err != nil {
			return m, fmt.Errorf("decoding %s ciphertext: %w", field.name, err)
		}
		*field.out = buff
	}
	return m, nil
}

func (h *handler) requestCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.RequestCalculation(r.Context(), id); err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	// fire-and-forget: the royalty is computed when the callback lands
	h.writeJSON(w, r, http.StatusAccepted, struct{}{})
}

func (h *handler) revealedRoyalty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	royalty, err := h.store.Royalty(r.Context(), id)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, royaltyResponse{
		ContributionID: royalty.ContributionID,
		ShareBps:       royalty.ShareBps,
		Payment:        royalty.Payment,
		Revealed:       royalty.Revealed,
	})
}

func (h *handler) requestClaim(w http.ResponseWriter, r *http.Request) {
	key, err := ledger.KeyFromHex(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.RequestClaim(r.Context(), key); err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, struct{}{})
}

func (h *handler) depositToPool(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	balance, err := h.engine.Deposit(r.Context(), req.Amount)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, depositResponse{Balance: balance})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"pending": h.engine.PendingRequests(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledgererrors.ErrNoContribution),
		errors.Is(err, ledgererrors.ErrNoDistribution):
		return http.StatusNotFound
	case errors.Is(err, ledgererrors.ErrAlreadyDistributed),
		errors.Is(err, ledgererrors.ErrAlreadyClaimed),
		errors.Is(err, ledgererrors.ErrCalculationPending):
		return http.StatusConflict
	case errors.Is(err, ledgererrors.ErrNegativeDeposit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	metrics.HTTPCallCounter.WithLabelValues(strconv.Itoa(code), r.Method).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warnw("writing response failed", "path", r.URL.Path, "err", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	h.log.Warnw("request rejected", "path", r.URL.Path, "code", code, "err", err)
	h.writeJSON(w, r, code, errorResponse{Error: err.Error()})
}
