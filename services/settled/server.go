package settled

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridsettle/settlement"
	"gridsettle/storage"
)

// Server exposes the settlement trigger API over HTTP.
type Server struct {
	engine *settlement.Engine
	store  *storage.Storage
	token  string
	log    *slog.Logger
	now    func() time.Time

	router http.Handler
}

// NewServer constructs the API server wrapping the engine and history store.
func NewServer(engine *settlement.Engine, store *storage.Storage, bearerToken string, log *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		store:  store,
		token:  strings.TrimSpace(bearerToken),
		log:    log,
		now:    time.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/settlements", s.handleSettle)
		r.Post("/settlements/estimate", s.handleEstimate)
		r.Get("/settlements/{runID}", s.handleGetRun)
		r.Get("/claims/{claimID}/history", s.handleClaimHistory)
		r.Get("/statistics", s.handleStatistics)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			writeError(w, http.StatusServiceUnavailable, "api authentication not configured")
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) || strings.TrimSpace(header[len(prefix):]) != s.token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type settleRequest struct {
	Claims []settlement.MintClaim `json:"claims"`
}

type settleResponse struct {
	RunID         uuid.UUID              `json:"runId"`
	Outcomes      []settlement.Outcome   `json:"outcomes"`
	Settled       int                    `json:"settled"`
	Failed        int                    `json:"failed"`
	Indeterminate int                    `json:"indeterminate"`
	Estimate      settlement.FeeEstimate `json:"estimate"`
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The estimate shares the planner with the run, so the recorded group
	// count matches what was dispatched.
	estimate, err := s.engine.EstimateFee(req.Claims)
	if err != nil {
		writeStructuralError(w, err)
		return
	}
	startedAt := s.now()
	outcomes, err := s.engine.SettleBatch(r.Context(), req.Claims)
	if err != nil {
		writeStructuralError(w, err)
		return
	}
	finishedAt := s.now()

	run := storage.Run{
		ID:          uuid.New(),
		ClaimCount:  len(req.Claims),
		GroupCount:  estimate.Groups,
		FeeEstimate: estimate.TotalFeeUnits,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case settlement.StatusSettled:
			run.SettledClaims++
		case settlement.StatusIndeterminate:
			run.Indeterminate++
		default:
			run.FailedClaims++
		}
	}
	if s.store != nil {
		if err := s.store.RecordRun(r.Context(), run, req.Claims, outcomes); err != nil {
			// History is advisory; the outcomes are still authoritative.
			s.log.Error("record settlement run", "run", run.ID, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, settleResponse{
		RunID:         run.ID,
		Outcomes:      outcomes,
		Settled:       run.SettledClaims,
		Failed:        run.FailedClaims,
		Indeterminate: run.Indeterminate,
		Estimate:      estimate,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	estimate, err := s.engine.EstimateFee(req.Claims)
	if err != nil {
		writeStructuralError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

type runResponse struct {
	Run      storage.Run             `json:"run"`
	Outcomes []storage.OutcomeRecord `json:"outcomes"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error("load settlement run", "run", runID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	outcomes, err := s.store.RunOutcomes(r.Context(), runID)
	if err != nil {
		s.log.Error("load run outcomes", "run", runID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load run outcomes")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Outcomes: outcomes})
}

func (s *Server) handleClaimHistory(w http.ResponseWriter, r *http.Request) {
	claimID, err := uuid.Parse(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}
	records, err := s.store.ClaimHistory(r.Context(), claimID)
	if err != nil {
		s.log.Error("load claim history", "claim", claimID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load claim history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"claimId": claimID, "attempts": records})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		s.log.Error("load statistics", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeStructuralError maps batch-level rejections onto HTTP statuses. These
// carry no outcomes: the batch was rejected outright, not processed.
func writeStructuralError(w http.ResponseWriter, err error) {
	var tooLarge *settlement.BatchTooLargeError
	switch {
	case errors.Is(err, settlement.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error": tooLarge.Error(),
			"size":  tooLarge.Size,
			"max":   tooLarge.Max,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
