// Package api provides the HTTP server for the RepID daemon.
// It exposes the reputation engine's update and query operations as a small
// JSON API, plus health and Prometheus metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperdag-network/repid/internal/domain"
	"github.com/hyperdag-network/repid/internal/infra/observability"
	"github.com/hyperdag-network/repid/internal/infra/reputation"
)

// defaultLeaderboardLimit applies when the query string omits limit.
const defaultLeaderboardLimit = 10

// Server is the RepID HTTP API server.
type Server struct {
	engine         *reputation.Engine
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server around an engine.
func NewServer(engine *reputation.Engine, logger *slog.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/repid", s.handleGetRepID)
			r.Get("/stats", s.handleStats)
			r.Post("/validations", s.handleValidation)
			r.Post("/reset", s.handleReset)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

// handleValidation applies one validation outcome to an agent.
// POST /api/agents/{agentID}/validations
func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var result domain.ValidationResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	// Callers without their own event clock may omit the timestamp.
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	update, err := s.engine.UpdateRepID(agentID, result)
	if err != nil {
		recordRejection(err)
		writeError(w, statusForUpdateError(err), err.Error())
		return
	}

	outcome := "incorrect"
	if result.Correct {
		outcome = "correct"
	}
	observability.UpdatesProcessed.WithLabelValues(outcome).Inc()
	observability.ScoreChange.Observe(update.Change)
	if strings.Contains(update.Reason, "recovery bonus") {
		observability.RecoveryBonuses.Inc()
	}
	s.publishEngineGauges()

	s.logger.Info("repid updated",
		"agent", agentID,
		"old", update.OldRepID,
		"new", update.NewRepID,
		"reason", update.Reason)

	writeJSON(w, http.StatusOK, update)
}

// handleGetRepID returns the agent's current score.
// GET /api/agents/{agentID}/repid
func (s *Server) handleGetRepID(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": agentID,
		"repid":    s.engine.GetRepID(agentID),
	})
}

// handleStats returns aggregate statistics for an agent.
// GET /api/agents/{agentID}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.AgentStats(chi.URLParam(r, "agentID")))
}

// handleReset clears an agent's history and overrides its score.
// POST /api/agents/{agentID}/reset — body: {"new_score": 250} or {}
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var body struct {
		NewScore *float64 `json:"new_score"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	s.engine.Reset(agentID, body.NewScore)
	observability.Resets.Inc()
	s.publishEngineGauges()

	s.logger.Info("repid reset", "agent", agentID, "score", s.engine.GetRepID(agentID))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": agentID,
		"repid":    s.engine.GetRepID(agentID),
	})
}

// handleLeaderboard returns the top agents by score.
// GET /api/leaderboard?limit=N
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	entries, err := s.engine.Leaderboard(limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSummary returns population-level aggregates.
// GET /api/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Summary())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// publishEngineGauges refreshes the population gauges after a mutation.
func (s *Server) publishEngineGauges() {
	summary := s.engine.Summary()
	observability.TrackedAgents.Set(float64(summary.AgentCount))
	observability.MeanScore.Set(summary.MeanRepID)
}

// statusForUpdateError maps engine errors to HTTP status codes.
func statusForUpdateError(err error) int {
	if errors.Is(err, domain.ErrStaleTimestamp) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// recordRejection bumps the rejection counter with a stable reason label.
func recordRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidConfidence):
		observability.UpdatesRejected.WithLabelValues("confidence").Inc()
	case errors.Is(err, domain.ErrInvalidDifficulty):
		observability.UpdatesRejected.WithLabelValues("difficulty").Inc()
	case errors.Is(err, domain.ErrStaleTimestamp):
		observability.UpdatesRejected.WithLabelValues("timestamp").Inc()
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
