// Package domain holds the pure data model for the RepID reputation engine.
// Domain types carry no infrastructure dependencies — they are shared by the
// engine, the HTTP API, the NATS ingest path, and the SQLite snapshot store.
package domain

import "time"

// Trend classifies the recent direction of an agent's score.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// ValidationResult is one validation outcome supplied by an external judge.
// The engine never decides correctness itself — it only scores the verdict.
type ValidationResult struct {
	Correct    bool      `json:"correct"`
	Confidence float64   `json:"confidence"`   // judge's confidence in [0,1]
	Difficulty float64   `json:"difficulty"`   // task difficulty in [0,1]
	IsEdgeCase bool      `json:"is_edge_case"` // inherently hard/ambiguous case
	Timestamp  time.Time `json:"timestamp"`
}

// RepIDUpdate is the immutable record produced by every score update.
type RepIDUpdate struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	OldRepID  float64   `json:"old_repid"`
	NewRepID  float64   `json:"new_repid"`
	Change    float64   `json:"change"` // NewRepID − OldRepID
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStats is the aggregate reporting view for one agent.
type AgentStats struct {
	AgentID           string  `json:"agent_id"`
	CurrentRepID      float64 `json:"current_repid"`
	AvgRepID          float64 `json:"avg_repid"` // mean over update history
	TotalValidations  int     `json:"total_validations"`
	CorrectRate       float64 `json:"correct_rate"`        // all-time
	RecentCorrectRate float64 `json:"recent_correct_rate"` // last 10 validations
	IsRecovering      bool    `json:"is_recovering"`
	Trend             Trend   `json:"trend"`
	Tier              string  `json:"tier"`
}

// LeaderboardEntry is one row of the score-ordered leaderboard.
type LeaderboardEntry struct {
	AgentID string     `json:"agent_id"`
	RepID   float64    `json:"repid"`
	Stats   AgentStats `json:"stats"`
}

// EngineSummary is a population-level snapshot of the whole engine.
type EngineSummary struct {
	AgentCount   int     `json:"agent_count"`
	MeanRepID    float64 `json:"mean_repid"`
	TotalUpdates int64   `json:"total_updates"`
}

// AgentSnapshot is the persistence view of one agent's full state.
// A storage adapter saves and restores exactly this — the engine itself
// never touches durable storage.
type AgentSnapshot struct {
	AgentID          string
	Score            float64
	LastUpdate       time.Time
	TotalValidations int
	TotalCorrect     int
	Validations      []ValidationResult
	Updates          []RepIDUpdate
}
