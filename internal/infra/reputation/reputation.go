// Package reputation implements the temporal RepID trust-scoring engine.
//
// Each agent has a single bounded score that moves on every validation
// outcome:
//   - correct validations earn difficulty-weighted rewards, boosted while
//     the agent is recovering from a bad streak
//   - incorrect validations cost context-shaped penalties (confident
//     mistakes cost more, edge cases and hard tasks cost less)
//   - idle time decays the stored score toward the population default
//   - the fresh outcome is blended with the decayed prior to smooth
//     single-event volatility, then clamped to the configured bounds
//
// The engine is in-memory and lock-sharded: updates for different agents run
// in parallel, while the read-modify-write sequence for one agent is always
// serialized by its shard mutex.
package reputation

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperdag-network/repid/internal/domain"
)

// shardCount spreads agent locks to keep unrelated updates contention-free.
const shardCount = 32

// agentState is everything the engine tracks per agent. Guarded by the
// owning shard's mutex.
type agentState struct {
	score      float64
	lastUpdate time.Time
	seen       bool // false until first update; reads of unseen agents stay side-effect-free

	// All-time counters survive history eviction.
	totalValidations int
	totalCorrect     int

	// Bounded FIFO histories, oldest evicted first.
	validations []domain.ValidationResult
	updates     []domain.RepIDUpdate
}

type shard struct {
	mu     sync.RWMutex
	agents map[string]*agentState
}

// Engine is the RepID scoring engine. Construct one per process (or tenant)
// with NewEngine and share it by reference — there is no package-level
// singleton.
type Engine struct {
	policy Policy
	shards [shardCount]*shard

	// Injectable clock for testing and for reset timestamps.
	now func() time.Time
}

// NewEngine creates an engine with the given policy. Fails fast if the
// policy violates its invariants.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{policy: policy, now: time.Now}
	for i := range e.shards {
		e.shards[i] = &shard{agents: make(map[string]*agentState)}
	}
	return e, nil
}

// Policy returns the engine's immutable trust policy.
func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) shardFor(agentID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return e.shards[h.Sum32()%shardCount]
}

// ─── Update Pipeline ────────────────────────────────────────────────────────

// UpdateRepID applies one validation outcome to an agent's score and returns
// the resulting update record. This is the only mutator of agent scores
// besides the administrative Reset.
//
// Pipeline: validate input → decay stored score to the event time → evaluate
// the outcome into a signed delta → blend with the decayed prior → clamp →
// commit score and histories atomically under the agent's shard lock.
func (e *Engine) UpdateRepID(agentID string, result domain.ValidationResult) (domain.RepIDUpdate, error) {
	if result.Confidence < 0 || result.Confidence > 1 {
		return domain.RepIDUpdate{}, fmt.Errorf("agent %s: %w: got %.3f",
			agentID, domain.ErrInvalidConfidence, result.Confidence)
	}
	if result.Difficulty < 0 || result.Difficulty > 1 {
		return domain.RepIDUpdate{}, fmt.Errorf("agent %s: %w: got %.3f",
			agentID, domain.ErrInvalidDifficulty, result.Difficulty)
	}

	s := e.shardFor(agentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agents[agentID]
	if st == nil {
		st = &agentState{score: e.policy.DefaultRepID}
		s.agents[agentID] = st
	}

	// Equal timestamps are fine (bursts within one clock tick); only a
	// strict regression is rejected.
	if st.seen && result.Timestamp.Before(st.lastUpdate) {
		return domain.RepIDUpdate{}, fmt.Errorf("agent %s: %w: %s < %s",
			agentID, domain.ErrStaleTimestamp,
			result.Timestamp.Format(time.RFC3339), st.lastUpdate.Format(time.RFC3339))
	}

	oldScore := st.score
	decayed := e.decay(st.score, st.lastUpdate, result.Timestamp, st.seen)
	recovering := isRecovering(st.validations, e.policy.RecoveryWindow, e.policy.RecoveryThreshold)
	newRaw, reason := e.evaluate(decayed, result, recovering)

	w := e.policy.BlendNewWeight
	final := clamp(newRaw*w+decayed*(1-w), e.policy.MinRepID, e.policy.MaxRepID)

	update := domain.RepIDUpdate{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		OldRepID:  oldScore,
		NewRepID:  final,
		Change:    final - oldScore,
		Reason:    reason,
		Timestamp: result.Timestamp,
	}

	st.score = final
	st.lastUpdate = result.Timestamp
	st.seen = true
	st.totalValidations++
	if result.Correct {
		st.totalCorrect++
	}
	st.validations = appendBounded(st.validations, result, e.policy.ValidationHistoryCap)
	st.updates = appendBounded(st.updates, update, e.policy.UpdateHistoryCap)

	return update, nil
}

// decay attenuates a stored score by the configured daily rate over the idle
// interval. An unseen agent (or zero elapsed time) decays by nothing.
func (e *Engine) decay(score float64, last, now time.Time, seen bool) float64 {
	if !seen {
		return score
	}
	hours := now.Sub(last).Hours()
	if hours <= 0 {
		return score
	}
	return score * math.Pow(e.policy.DecayRate, hours/24)
}

// evaluate converts one validation outcome into the new raw score and a
// human-readable reason.
func (e *Engine) evaluate(decayed float64, r domain.ValidationResult, recovering bool) (float64, string) {
	if r.Correct {
		reward := e.policy.BaseReward * r.Difficulty
		reason := fmt.Sprintf("correct validation (difficulty %.2f)", r.Difficulty)
		if recovering {
			reward *= e.policy.RecoveryBonus
			reason += ", recovery bonus"
		}
		return decayed + reward, reason
	}

	penalty := e.policy.BasePenalty
	reason := "incorrect validation"
	if r.Confidence > e.policy.ConfidentMissThreshold {
		penalty *= e.policy.ConfidentMissMultiplier
		reason += ", confident miss"
	}
	if r.IsEdgeCase {
		penalty *= e.policy.EdgeCaseMultiplier
		reason += ", edge case"
	}
	// Hard tasks are forgiven more: difficulty 1.0 keeps the penalty as-is,
	// difficulty 0 doubles it.
	penalty *= 2 - r.Difficulty
	return decayed - penalty, reason
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GetRepID returns an agent's current score. Unseen agents report the
// default score; the read never mutates state.
func (e *Engine) GetRepID(agentID string) float64 {
	s := e.shardFor(agentID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.agents[agentID]; ok {
		return st.score
	}
	return e.policy.DefaultRepID
}

// ─── Administrative Reset ───────────────────────────────────────────────────

// Reset clears all history for an agent and sets its score to newScore, or
// to the policy default when newScore is nil. The override is clamped to the
// configured bounds so the engine invariant survives operator typos.
func (e *Engine) Reset(agentID string, newScore *float64) {
	score := e.policy.DefaultRepID
	if newScore != nil {
		score = clamp(*newScore, e.policy.MinRepID, e.policy.MaxRepID)
	}

	s := e.shardFor(agentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agentID] = &agentState{
		score:      score,
		lastUpdate: e.now(),
		seen:       true,
	}
}

// ─── Persistence Hooks ──────────────────────────────────────────────────────
// The engine owns no durable storage; a storage adapter drains and refills
// it through these two methods.

// Snapshot exports a deep copy of every agent's state.
func (e *Engine) Snapshot() []domain.AgentSnapshot {
	var out []domain.AgentSnapshot
	for _, s := range e.shards {
		s.mu.RLock()
		for id, st := range s.agents {
			snap := domain.AgentSnapshot{
				AgentID:          id,
				Score:            st.score,
				LastUpdate:       st.lastUpdate,
				TotalValidations: st.totalValidations,
				TotalCorrect:     st.totalCorrect,
				Validations:      make([]domain.ValidationResult, len(st.validations)),
				Updates:          make([]domain.RepIDUpdate, len(st.updates)),
			}
			copy(snap.Validations, st.validations)
			copy(snap.Updates, st.updates)
			out = append(out, snap)
		}
		s.mu.RUnlock()
	}
	return out
}

// Restore loads agent state from snapshots, replacing any existing state for
// the same agents. Histories longer than the configured caps are trimmed to
// the newest entries.
func (e *Engine) Restore(snapshots []domain.AgentSnapshot) {
	for _, snap := range snapshots {
		st := &agentState{
			score:            clamp(snap.Score, e.policy.MinRepID, e.policy.MaxRepID),
			lastUpdate:       snap.LastUpdate,
			seen:             true,
			totalValidations: snap.TotalValidations,
			totalCorrect:     snap.TotalCorrect,
		}
		st.validations = tail(snap.Validations, e.policy.ValidationHistoryCap)
		st.updates = tail(snap.Updates, e.policy.UpdateHistoryCap)

		s := e.shardFor(snap.AgentID)
		s.mu.Lock()
		s.agents[snap.AgentID] = st
		s.mu.Unlock()
	}
}

// ─── Pure Helpers ───────────────────────────────────────────────────────────

// appendBounded appends to a FIFO log, evicting the oldest entry at capacity.
func appendBounded[T any](log []T, entry T, capacity int) []T {
	log = append(log, entry)
	if len(log) > capacity {
		log = log[len(log)-capacity:]
	}
	return log
}

// tail returns a copy of the newest n entries.
func tail[T any](entries []T, n int) []T {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]T, len(entries))
	copy(out, entries)
	return out
}

// clamp restricts a value to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
