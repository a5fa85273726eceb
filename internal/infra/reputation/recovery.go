package reputation

import "github.com/hyperdag-network/repid/internal/domain"

// ─── Recovery Detection ─────────────────────────────────────────────────────

// isRecovering reports whether an agent's recent validations trend upward.
// It inspects the newest window entries, splits them chronologically into
// two equal halves, and compares correct rates: the agent is recovering iff
// the second half beats the first by more than threshold.
//
// Fewer than window entries means not recovering — a short history is not
// evidence of a turnaround. Only reward computation consults this; penalties
// never do.
func isRecovering(history []domain.ValidationResult, window int, threshold float64) bool {
	if len(history) < window {
		return false
	}

	recent := history[len(history)-window:]
	half := window / 2
	first := correctRate(recent[:half])
	second := correctRate(recent[half:])

	return second > first+threshold
}

// correctRate returns the fraction of correct validations, 0 for an empty slice.
func correctRate(results []domain.ValidationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	correct := 0
	for _, r := range results {
		if r.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(results))
}
