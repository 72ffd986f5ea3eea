// Package httpapi exposes the backtest, generation, auth, and persistence
// operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"factorlab/internal/backtest"
	"factorlab/internal/domain"
	"factorlab/internal/store"
)

// BacktestRunner runs one backtest end to end.
type BacktestRunner interface {
	Run(ctx context.Context, req domain.BacktestRequest) (*domain.BacktestResult, error)
}

// FactorGenerator generates alpha factors from prompts.
type FactorGenerator interface {
	GenerateFactor(ctx context.Context, prompt string, cfg domain.GenerationConfig) (*domain.AlphaFactor, error)
	GenerateBulk(ctx context.Context, count int, cfg domain.GenerationConfig) ([]domain.AlphaFactor, error)
}

// Authenticator exchanges an OAuth code for a verified identity.
type Authenticator interface {
	Exchange(ctx context.Context, code, redirectURI string) (*domain.User, error)
}

// Server serves the factorlab HTTP API. Generator, auth, and the stores may
// be nil; their endpoints then answer 503.
type Server struct {
	runner    BacktestRunner
	provider  backtest.PriceProvider
	generator FactorGenerator
	auth      Authenticator
	users     store.UserStore
	factors   store.FactorStore
	results   store.ResultStore
	log       *slog.Logger
}

// NewServer wires the API surface over its collaborators.
func NewServer(
	runner BacktestRunner,
	provider backtest.PriceProvider,
	generator FactorGenerator,
	auth Authenticator,
	users store.UserStore,
	factors store.FactorStore,
	results store.ResultStore,
	log *slog.Logger,
) *Server {
	return &Server{
		runner:    runner,
		provider:  provider,
		generator: generator,
		auth:      auth,
		users:     users,
		factors:   factors,
		results:   results,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/market-data", s.handleMarketData)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/generate-bulk", s.handleGenerateBulk)
	mux.HandleFunc("POST /api/auth/github/exchange", s.handleAuthExchange)
	mux.HandleFunc("POST /api/db/user", s.handleSaveUser)
	mux.HandleFunc("POST /api/db/factors/save", s.handleSaveFactor)
	mux.HandleFunc("POST /api/db/factors/sync", s.handleSyncFactors)
	mux.HandleFunc("DELETE /api/db/factors/{id}", s.handleDeleteFactor)
	mux.HandleFunc("GET /api/db/factors", s.handleListFactors)
	mux.HandleFunc("POST /api/db/backtest/save", s.handleSaveResult)
	mux.HandleFunc("GET /api/db/backtest", s.handleListResults)
}

// Handler returns the full handler chain: routes, request logging, CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.loggingMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the request log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()[:8]
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.log.Info("request",
			"id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeDomainError maps domain failures to HTTP statuses: bad benchmark
// symbols are the caller's fault, external collaborator failures are
// gateway errors, everything else is internal.
func writeDomainError(w http.ResponseWriter, err error) {
	var extErr *domain.ExternalServiceError
	var evalErr *domain.FactorEvaluationError
	switch {
	case errors.Is(err, domain.ErrUnsupportedBenchmark):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDataUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &extErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &evalErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("benchmark")
	bench, err := domain.ResolveBenchmark(symbol)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	points, err := s.provider.Fetch(r.Context(), bench.Ticker, bench.Class, backtest.DefaultLookbackDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req domain.BacktestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Formula) == "" || strings.TrimSpace(req.BenchmarkSymbol) == "" {
		writeError(w, http.StatusBadRequest, "formula and benchmark are required")
		return
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "factor generation not configured")
		return
	}
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	f, err := s.generator.GenerateFactor(r.Context(), req.Prompt, req.Config)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, f)
}

func (s *Server) handleGenerateBulk(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "factor generation not configured")
		return
	}
	var req GenerateBulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		writeError(w, http.StatusBadRequest, "count must be positive")
		return
	}

	factors, err := s.generator.GenerateBulk(r.Context(), req.Count, req.Config)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, factors)
}

func (s *Server) handleAuthExchange(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "authentication not configured")
		return
	}
	var req AuthExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	user, err := s.auth.Exchange(r.Context(), req.Code, req.RedirectURI)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, user)
}

func (s *Server) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	var req SaveUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	if err := s.users.SaveUser(r.Context(), &req.User); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, SuccessResponse{Success: true})
}

func (s *Server) handleSaveFactor(w http.ResponseWriter, r *http.Request) {
	if s.factors == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	var req SaveFactorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Factor.ID == "" {
		writeError(w, http.StatusBadRequest, "userId and factor id are required")
		return
	}

	if err := s.factors.SaveFactor(r.Context(), req.UserID, &req.Factor); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, SuccessResponse{Success: true})
}

func (s *Server) handleSyncFactors(w http.ResponseWriter, r *http.Request) {
	if s.factors == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	var req SyncFactorsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.factors.SyncFactors(r.Context(), req.UserID, req.Factors); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, SuccessResponse{Success: true})
}

func (s *Server) handleDeleteFactor(w http.ResponseWriter, r *http.Request) {
	if s.factors == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	factorID := r.PathValue("id")
	var req DeleteFactorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.factors.DeleteFactor(r.Context(), req.UserID, factorID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, SuccessResponse{Success: true})
}

func (s *Server) handleListFactors(w http.ResponseWriter, r *http.Request) {
	if s.factors == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	factors, err := s.factors.ListFactors(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if factors == nil {
		factors = []domain.AlphaFactor{}
	}
	writeJSON(w, factors)
}

func (s *Server) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	var req SaveResultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.FactorID == "" {
		writeError(w, http.StatusBadRequest, "userId and factorId are required")
		return
	}

	if err := s.results.SaveResult(r.Context(), req.UserID, req.FactorID, &req.Result); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, SuccessResponse{Success: true})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	factorID := r.URL.Query().Get("factorId")
	if factorID == "" {
		writeError(w, http.StatusBadRequest, "factorId is required")
		return
	}

	results, err := s.results.ListResults(r.Context(), factorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []domain.BacktestResult{}
	}
	writeJSON(w, results)
}
