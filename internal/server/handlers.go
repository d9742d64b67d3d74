package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"
	"RoiLedger/internal/session"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ledger.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, session.ErrUnknownField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// rejectReason labels validation failures for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNegativeAmount):
		return "negative_amount"
	case errors.Is(err, ledger.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ledger.ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, session.ErrUnknownField):
		return "unknown_field"
	default:
		return "other"
	}
}

func (s *Server) entryFromPath(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	e, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return e, true
}

// mutationApplied counts the mutation and records how long the mutate-and-
// recompute pass held the session lock.
func (s *Server) mutationApplied(mutation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.MutationsApplied.WithLabelValues(mutation).Inc()
		s.metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Server) mutationRejected(mutation string, err error) {
	if s.metrics != nil {
		s.metrics.MutationsRejected.WithLabelValues(mutation, rejectReason(err)).Inc()
	}
}

// --- session lifecycle ---

type createSessionRequest struct {
	Policy string `json:"policy"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body means the configured default policy.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	policy := s.cfg.DefaultPolicy
	if req.Policy != "" {
		p, ok := roi.ParsePolicy(req.Policy)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown policy: "+req.Policy)
			return
		}
		policy = p
	}

	id := s.registry.Create(policy)
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(s.registry.Count()))
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": id,
		"policy":     policy.String(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.List()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := s.registry.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Set(float64(s.registry.Count()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- queries ---

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	var res session.Result
	e.With(func(st *session.State) {
		res = st.ComputeResult()
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	var table string
	e.With(func(st *session.State) {
		table = st.ComputeResult().BreakdownTable()
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(table))
}

type transferView struct {
	Index       int             `json:"index"`
	Side        string          `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

type pnlView struct {
	Index  int             `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	var transfers []transferView
	var pnl []pnlView
	e.With(func(st *session.State) {
		for i, t := range st.SpotTransfers() {
			transfers = append(transfers, transferView{
				Index:       i,
				Side:        t.Side.String(),
				Amount:      t.Amount,
				RealizedPnl: t.RealizedPnl,
			})
		}
		for i, p := range st.FuturesPnl() {
			pnl = append(pnl, pnlView{Index: i, Amount: p.Amount})
		}
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"spot_transfers": transfers,
		"futures_pnl":    pnl,
	})
}

func (s *Server) handleProjectedEndBalance(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	var projected decimal.Decimal
	e.With(func(st *session.State) {
		projected = st.ProjectedEndBalance()
	})
	writeJSON(w, http.StatusOK, map[string]any{"projected_end_balance": projected})
}

// --- mutations ---

type transferRequest struct {
	Side        string `json:"side"`
	Amount      string `json:"amount"`
	RealizedPnl string `json:"realized_pnl"`
}

func (s *Server) handleAddTransfer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var side ledger.Side
	switch req.Side {
	case "buy":
		side = ledger.SideBuy
	case "sell":
		side = ledger.SideSell
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	pnl := decimal.Zero
	if req.RealizedPnl != "" {
		pnl, err = decimal.NewFromString(req.RealizedPnl)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid realized_pnl")
			return
		}
	}

	start := time.Now()
	var res session.Result
	var mErr error
	e.With(func(st *session.State) {
		if mErr = st.AddSpotTransfer(side, amount, pnl); mErr == nil {
			res = st.ComputeResult()
		}
	})
	if mErr != nil {
		s.mutationRejected("add_spot_transfer", mErr)
		writeError(w, statusFor(mErr), mErr.Error())
		return
	}

	s.mutationApplied("add_spot_transfer", start)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	start := time.Now()
	var res session.Result
	var mErr error
	e.With(func(st *session.State) {
		if mErr = st.DeleteSpotTransfer(idx); mErr == nil {
			res = st.ComputeResult()
		}
	})
	if mErr != nil {
		s.mutationRejected("delete_spot_transfer", mErr)
		writeError(w, statusFor(mErr), mErr.Error())
		return
	}

	s.mutationApplied("delete_spot_transfer", start)
	writeJSON(w, http.StatusOK, res)
}

type pnlRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleAddPnl(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	var req pnlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	start := time.Now()
	var res session.Result
	var mErr error
	e.With(func(st *session.State) {
		if mErr = st.AddFuturesPnl(amount); mErr == nil {
			res = st.ComputeResult()
		}
	})
	if mErr != nil {
		s.mutationRejected("add_futures_pnl", mErr)
		writeError(w, statusFor(mErr), mErr.Error())
		return
	}

	s.mutationApplied("add_futures_pnl", start)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeletePnl(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	start := time.Now()
	var res session.Result
	var mErr error
	e.With(func(st *session.State) {
		if mErr = st.DeleteFuturesPnl(idx); mErr == nil {
			res = st.ComputeResult()
		}
	})
	if mErr != nil {
		s.mutationRejected("delete_futures_pnl", mErr)
		writeError(w, statusFor(mErr), mErr.Error())
		return
	}

	s.mutationApplied("delete_futures_pnl", start)
	writeJSON(w, http.StatusOK, res)
}

type inputRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	field, err := session.ParseScalarField(r.PathValue("field"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}

	start := time.Now()
	var res session.Result
	var mErr error
	e.With(func(st *session.State) {
		if mErr = st.SetScalarInput(field, value); mErr == nil {
			res = st.ComputeResult()
		}
	})
	if mErr != nil {
		s.mutationRejected("set_scalar_input", mErr)
		writeError(w, statusFor(mErr), mErr.Error())
		return
	}

	s.mutationApplied("set_scalar_input", start)
	writeJSON(w, http.StatusOK, res)
}

type policyRequest struct {
	Policy string `json:"policy"`
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	policy, pok := roi.ParsePolicy(req.Policy)
	if !pok {
		writeError(w, http.StatusBadRequest, "unknown policy: "+req.Policy)
		return
	}

	start := time.Now()
	var res session.Result
	e.With(func(st *session.State) {
		st.SetPolicy(policy)
		res = st.ComputeResult()
	})

	s.mutationApplied("set_policy", start)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	start := time.Now()
	var res session.Result
	e.With(func(st *session.State) {
		st.Reset()
		res = st.ComputeResult()
	})

	s.mutationApplied("reset", start)
	writeJSON(w, http.StatusOK, res)
}

// --- fetch ---

type fetchRequest struct {
	Venue   string `json:"venue"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// handleFetch pulls a window of records from a venue, archives the raw batch
// when an archive is configured, and folds the batch into the session.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	source, sok := s.sources[req.Venue]
	if !sok {
		writeError(w, http.StatusBadRequest, "unknown venue: "+req.Venue)
		return
	}
	if req.EndMs <= req.StartMs {
		writeError(w, http.StatusBadRequest, "end_ms must be after start_ms")
		return
	}

	window := feed.Window{
		Start:    time.UnixMilli(req.StartMs),
		End:      time.UnixMilli(req.EndMs),
		Currency: s.cfg.Currency,
	}

	fetchStart := time.Now()
	batch, err := source.Fetch(r.Context(), window)
	if s.metrics != nil {
		s.metrics.FetchDuration.WithLabelValues(source.Name()).Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.FetchErrors.WithLabelValues(source.Name()).Inc()
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	archived := false
	if s.archive != nil {
		if _, err := s.archive.ArchiveBatch(r.Context(), source.Name(), batch); err != nil {
			// The archive is an audit trail, not a dependency of the
			// computation; a failed write degrades, it does not block.
			if s.metrics != nil {
				s.metrics.ArchiveErrors.Inc()
			}
			s.log.Warn().Err(err).Str("venue", source.Name()).Msg("archive write failed")
		} else {
			archived = true
			if s.metrics != nil {
				s.metrics.ArchiveBatches.Inc()
			}
		}
	}

	var stats feed.LoadStats
	var loadErr error
	e.With(func(st *session.State) {
		stats, loadErr = s.loader.Load(st, batch)
	})
	if loadErr != nil {
		writeError(w, statusFor(loadErr), loadErr.Error())
		return
	}

	var res session.Result
	e.With(func(st *session.State) {
		res = st.ComputeResult()
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"venue":             source.Name(),
		"archived":          archived,
		"transfers_applied": stats.TransfersApplied,
		"fills_applied":     stats.FillsApplied,
		"pnl_applied":       stats.PnlApplied,
		"pnl_skipped":       stats.PnlSkipped,
		"result":            res,
	})
}
