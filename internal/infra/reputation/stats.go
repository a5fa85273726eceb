package reputation

import (
	"sort"

	"github.com/hyperdag-network/repid/internal/domain"
)

// ─── Reporting / Query API ──────────────────────────────────────────────────

// AgentStats returns the aggregate reporting view for one agent. Unseen
// agents report the default score with zeroed counters.
func (e *Engine) AgentStats(agentID string) domain.AgentStats {
	s := e.shardFor(agentID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.agents[agentID]
	if !ok {
		return domain.AgentStats{
			AgentID:      agentID,
			CurrentRepID: e.policy.DefaultRepID,
			AvgRepID:     e.policy.DefaultRepID,
			Trend:        domain.TrendStable,
			Tier:         e.tier(e.policy.DefaultRepID),
		}
	}
	return e.statsLocked(agentID, st)
}

// statsLocked assembles stats for an agent whose shard is already held.
func (e *Engine) statsLocked(agentID string, st *agentState) domain.AgentStats {
	stats := domain.AgentStats{
		AgentID:          agentID,
		CurrentRepID:     st.score,
		AvgRepID:         st.score,
		TotalValidations: st.totalValidations,
		IsRecovering:     isRecovering(st.validations, e.policy.RecoveryWindow, e.policy.RecoveryThreshold),
		Trend:            e.trend(st.updates),
		Tier:             e.tier(st.score),
	}

	if len(st.updates) > 0 {
		sum := 0.0
		for _, u := range st.updates {
			sum += u.NewRepID
		}
		stats.AvgRepID = sum / float64(len(st.updates))
	}
	if st.totalValidations > 0 {
		stats.CorrectRate = float64(st.totalCorrect) / float64(st.totalValidations)
	}
	recent := st.validations
	if len(recent) > e.policy.RecoveryWindow {
		recent = recent[len(recent)-e.policy.RecoveryWindow:]
	}
	stats.RecentCorrectRate = correctRate(recent)

	return stats
}

// trend classifies the mean change over the newest TrendWindow updates.
func (e *Engine) trend(updates []domain.RepIDUpdate) domain.Trend {
	if len(updates) == 0 {
		return domain.TrendStable
	}
	recent := updates
	if len(recent) > e.policy.TrendWindow {
		recent = recent[len(recent)-e.policy.TrendWindow:]
	}
	sum := 0.0
	for _, u := range recent {
		sum += u.Change
	}
	mean := sum / float64(len(recent))

	switch {
	case mean > e.policy.TrendThreshold:
		return domain.TrendImproving
	case mean < -e.policy.TrendThreshold:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// tier labels a score relative to the population default, so a never-seen
// agent always starts NEUTRAL regardless of the configured bounds.
func (e *Engine) tier(score float64) string {
	ratio := score / e.policy.DefaultRepID
	switch {
	case ratio >= 3.0:
		return "EXCELLENT"
	case ratio >= 1.5:
		return "GOOD"
	case ratio >= 0.75:
		return "NEUTRAL"
	case ratio >= 0.4:
		return "LOW"
	default:
		return "POOR"
	}
}

// Leaderboard returns up to limit agents sorted by current score descending.
func (e *Engine) Leaderboard(limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}

	var entries []domain.LeaderboardEntry
	for _, s := range e.shards {
		s.mu.RLock()
		for id, st := range s.agents {
			entries = append(entries, domain.LeaderboardEntry{
				AgentID: id,
				RepID:   st.score,
				Stats:   e.statsLocked(id, st),
			})
		}
		s.mu.RUnlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RepID != entries[j].RepID {
			return entries[i].RepID > entries[j].RepID
		}
		return entries[i].AgentID < entries[j].AgentID // stable order for ties
	})

	if limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// Summary returns population-level aggregates across all agents.
func (e *Engine) Summary() domain.EngineSummary {
	var sum float64
	var count int
	var updates int64

	for _, s := range e.shards {
		s.mu.RLock()
		for _, st := range s.agents {
			sum += st.score
			count++
			updates += int64(st.totalValidations)
		}
		s.mu.RUnlock()
	}

	summary := domain.EngineSummary{AgentCount: count, TotalUpdates: updates}
	if count > 0 {
		summary.MeanRepID = sum / float64(count)
	}
	return summary
}

// AgentCount returns the number of agents the engine has seen.
func (e *Engine) AgentCount() int {
	count := 0
	for _, s := range e.shards {
		s.mu.RLock()
		count += len(s.agents)
		s.mu.RUnlock()
	}
	return count
}
