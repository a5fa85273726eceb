package reputation

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hyperdag-network/repid/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.now = func() time.Time { return t0 }
	return e
}

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func correct(difficulty float64, ts time.Time) domain.ValidationResult {
	return domain.ValidationResult{Correct: true, Confidence: 0.5, Difficulty: difficulty, Timestamp: ts}
}

func incorrect(confidence, difficulty float64, edge bool, ts time.Time) domain.ValidationResult {
	return domain.ValidationResult{Confidence: confidence, Difficulty: difficulty, IsEdgeCase: edge, Timestamp: ts}
}

// ─── Defaults ───────────────────────────────────────────────────────────────

func TestGetRepID_UnseenAgent(t *testing.T) {
	e := newTestEngine(t)
	if got := e.GetRepID("agent-ghost"); got != DefaultRepID {
		t.Errorf("unseen agent score = %f, want %f", got, DefaultRepID)
	}
	// The read must stay side-effect-free.
	if e.AgentCount() != 0 {
		t.Errorf("agent count = %d after read, want 0", e.AgentCount())
	}
}

// ─── Concrete Scenarios ─────────────────────────────────────────────────────

// New agent, first correct validation at full difficulty with no elapsed
// time: decayed=100, reward=10, raw=110, blend 110×0.7+100×0.3 = 107.
func TestUpdateRepID_ScenarioA(t *testing.T) {
	e := newTestEngine(t)

	up, err := e.UpdateRepID("a1", correct(1.0, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if !almostEqual(up.NewRepID, 107.0, 1e-9) {
		t.Errorf("new score = %f, want 107", up.NewRepID)
	}
	if !almostEqual(up.OldRepID, 100.0, 1e-9) {
		t.Errorf("old score = %f, want 100", up.OldRepID)
	}
	if !almostEqual(up.Change, 7.0, 1e-9) {
		t.Errorf("change = %f, want 7", up.Change)
	}
	if up.ID == "" {
		t.Error("update record has empty ID")
	}
	if got := e.GetRepID("a1"); !almostEqual(got, 107.0, 1e-9) {
		t.Errorf("GetRepID = %f, want 107", got)
	}
}

// Continuing scenario A at the same timestamp with a confident miss:
// penalty = 15×1.5×(2−1) = 22.5, raw = 84.5, blend = 84.5×0.7+107×0.3 = 91.25.
func TestUpdateRepID_ScenarioB(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.UpdateRepID("a1", correct(1.0, t0)); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}
	up, err := e.UpdateRepID("a1", incorrect(0.95, 1.0, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if !almostEqual(up.NewRepID, 91.25, 1e-9) {
		t.Errorf("new score = %f, want 91.25", up.NewRepID)
	}
	if got := e.GetRepID("a1"); !almostEqual(got, 91.25, 1e-9) {
		t.Errorf("GetRepID = %f, want 91.25", got)
	}
}

// ─── Decay ──────────────────────────────────────────────────────────────────

func TestDecay_OneDay(t *testing.T) {
	e := newTestEngine(t)
	// 24 idle hours at rate 0.95 ⇒ exactly one decay period.
	got := e.decay(100, t0, t0.Add(24*time.Hour), true)
	if !almostEqual(got, 95.0, 1e-9) {
		t.Errorf("decay(100, +24h) = %f, want 95", got)
	}
}

func TestDecay_StrictlyDecreasing(t *testing.T) {
	e := newTestEngine(t)
	prev := 100.0
	for h := 1; h <= 96; h *= 2 {
		got := e.decay(100, t0, t0.Add(time.Duration(h)*time.Hour), true)
		if got >= prev {
			t.Fatalf("decay not strictly decreasing at %dh: %f >= %f", h, got, prev)
		}
		prev = got
	}
}

func TestDecay_ZeroElapsed(t *testing.T) {
	e := newTestEngine(t)
	if got := e.decay(100, t0, t0, true); got != 100 {
		t.Errorf("decay with zero elapsed = %f, want 100", got)
	}
	// Unseen agents never decay, whatever the stored zero time looks like.
	if got := e.decay(100, time.Time{}, t0, false); got != 100 {
		t.Errorf("decay of unseen agent = %f, want 100", got)
	}
}

func TestUpdateRepID_DecayApplied(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.UpdateRepID("a1", correct(0, t0)); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}
	base := e.GetRepID("a1") // 100 after zero-reward blend

	// Two idle days, then a zero-difficulty correct validation (no reward):
	// final = decayed×(0.7+0.3) = base×0.95².
	up, err := e.UpdateRepID("a1", correct(0, t0.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	want := base * 0.95 * 0.95
	if !almostEqual(up.NewRepID, want, 1e-9) {
		t.Errorf("decayed score = %f, want %f", up.NewRepID, want)
	}
}

// ─── Reward / Penalty Shaping ───────────────────────────────────────────────

func TestReward_MonotoneInDifficulty(t *testing.T) {
	e := newTestEngine(t)

	easy, err := e.UpdateRepID("easy", correct(0.3, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	hard, err := e.UpdateRepID("hard", correct(0.9, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if hard.Change <= easy.Change {
		t.Errorf("harder task should reward more: difficulty 0.9 → %+f, 0.3 → %+f",
			hard.Change, easy.Change)
	}
}

func TestPenalty_ConfidentMissHarsher(t *testing.T) {
	e := newTestEngine(t)

	confident, err := e.UpdateRepID("confident", incorrect(0.95, 0.5, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	hedged, err := e.UpdateRepID("hedged", incorrect(0.5, 0.5, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if confident.Change >= hedged.Change {
		t.Errorf("confident miss should cost more: conf 0.95 → %+f, conf 0.5 → %+f",
			confident.Change, hedged.Change)
	}
}

func TestPenalty_EdgeCaseLeniency(t *testing.T) {
	e := newTestEngine(t)

	plain, err := e.UpdateRepID("plain", incorrect(0.5, 0.5, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	edge, err := e.UpdateRepID("edge", incorrect(0.5, 0.5, true, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if edge.Change <= plain.Change {
		t.Errorf("edge case should be penalized less: edge → %+f, plain → %+f",
			edge.Change, plain.Change)
	}
}

func TestPenalty_HardTasksForgivenMore(t *testing.T) {
	e := newTestEngine(t)

	easyMiss, err := e.UpdateRepID("easy-miss", incorrect(0.5, 0.1, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	hardMiss, err := e.UpdateRepID("hard-miss", incorrect(0.5, 0.9, false, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if easyMiss.Change >= hardMiss.Change {
		t.Errorf("failing an easy task should cost more: easy → %+f, hard → %+f",
			easyMiss.Change, hardMiss.Change)
	}
}

func TestRecoveryBonus_Applied(t *testing.T) {
	e := newTestEngine(t)

	// Five misses then five hits: second-half rate 1.0 beats first-half 0.0.
	// All at the same instant so decay stays out of the arithmetic.
	for i := 0; i < 5; i++ {
		if _, err := e.UpdateRepID("phoenix", incorrect(0.5, 0.5, false, t0)); err != nil {
			t.Fatalf("setup update failed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := e.UpdateRepID("phoenix", correct(1.0, t0)); err != nil {
			t.Fatalf("setup update failed: %v", err)
		}
	}

	up, err := e.UpdateRepID("phoenix", correct(1.0, t0))
	if err != nil {
		t.Fatalf("UpdateRepID failed: %v", err)
	}
	if up.Reason != "correct validation (difficulty 1.00), recovery bonus" {
		t.Errorf("reason = %q, want recovery bonus applied", up.Reason)
	}
	// reward = 10 × 1.2 = 12 ⇒ change = 0.7 × 12 = 8.4
	if !almostEqual(up.Change, 8.4, 1e-9) {
		t.Errorf("change = %f, want 8.4 (boosted reward)", up.Change)
	}
}

// ─── Bounds ─────────────────────────────────────────────────────────────────

func TestBounds_NeverViolated(t *testing.T) {
	e := newTestEngine(t)
	p := e.Policy()

	// Hammer one agent with worst-case penalties, another with best-case
	// rewards; the score must stay inside [min, max] at every step.
	ts := t0
	for i := 0; i < 500; i++ {
		if _, err := e.UpdateRepID("sinner", incorrect(1.0, 0, false, ts)); err != nil {
			t.Fatalf("UpdateRepID failed: %v", err)
		}
		if _, err := e.UpdateRepID("saint", correct(1.0, ts)); err != nil {
			t.Fatalf("UpdateRepID failed: %v", err)
		}
		for _, agent := range []string{"sinner", "saint"} {
			score := e.GetRepID(agent)
			if score < p.MinRepID || score > p.MaxRepID {
				t.Fatalf("step %d: %s score %f outside [%f, %f]",
					i, agent, score, p.MinRepID, p.MaxRepID)
			}
		}
		ts = ts.Add(time.Second)
	}

	if got := e.GetRepID("sinner"); !almostEqual(got, p.MinRepID, 1e-9) {
		t.Errorf("relentless failure should pin score to floor, got %f", got)
	}
}

// ─── History Capacity ───────────────────────────────────────────────────────

func TestHistory_Capped(t *testing.T) {
	e := newTestEngine(t)

	ts := t0
	for i := 0; i < 130; i++ {
		if _, err := e.UpdateRepID("busy", correct(0.5, ts)); err != nil {
			t.Fatalf("UpdateRepID failed: %v", err)
		}
		ts = ts.Add(time.Second)
	}

	snaps := e.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("snapshot count = %d, want 1", len(snaps))
	}
	if len(snaps[0].Validations) != 100 {
		t.Errorf("validation history = %d entries, want 100", len(snaps[0].Validations))
	}
	if len(snaps[0].Updates) != 50 {
		t.Errorf("update history = %d entries, want 50", len(snaps[0].Updates))
	}
	// Oldest evicted first: the newest entry must be the last one fed in.
	last := snaps[0].Validations[len(snaps[0].Validations)-1]
	if !last.Timestamp.Equal(ts.Add(-time.Second)) {
		t.Errorf("newest history entry at %v, want %v", last.Timestamp, ts.Add(-time.Second))
	}
	if snaps[0].TotalValidations != 130 {
		t.Errorf("all-time count = %d, want 130 (must survive eviction)", snaps[0].TotalValidations)
	}
}

// ─── Input Validation ───────────────────────────────────────────────────────

func TestUpdateRepID_RejectsOutOfRangeInputs(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		result  domain.ValidationResult
		wantErr error
	}{
		{"confidence above 1", domain.ValidationResult{Confidence: 1.2, Difficulty: 0.5, Timestamp: t0}, domain.ErrInvalidConfidence},
		{"confidence below 0", domain.ValidationResult{Confidence: -0.1, Difficulty: 0.5, Timestamp: t0}, domain.ErrInvalidConfidence},
		{"difficulty above 1", domain.ValidationResult{Confidence: 0.5, Difficulty: 1.5, Timestamp: t0}, domain.ErrInvalidDifficulty},
		{"difficulty below 0", domain.ValidationResult{Confidence: 0.5, Difficulty: -1, Timestamp: t0}, domain.ErrInvalidDifficulty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.UpdateRepID("a1", tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejected inputs must not touch state.
	if e.AgentCount() != 0 {
		t.Errorf("agent count = %d after rejected updates, want 0", e.AgentCount())
	}
}

func TestUpdateRepID_RejectsStaleTimestamp(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.UpdateRepID("a1", correct(0.5, t0)); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}
	_, err := e.UpdateRepID("a1", correct(0.5, t0.Add(-time.Hour)))
	if !errors.Is(err, domain.ErrStaleTimestamp) {
		t.Errorf("error = %v, want ErrStaleTimestamp", err)
	}
	// Equal timestamps are allowed.
	if _, err := e.UpdateRepID("a1", correct(0.5, t0)); err != nil {
		t.Errorf("equal timestamp rejected: %v", err)
	}
}

// ─── Reset ──────────────────────────────────────────────────────────────────

func TestReset_ToDefault(t *testing.T) {
	e := newTestEngine(t)

	ts := t0
	for i := 0; i < 8; i++ {
		if _, err := e.UpdateRepID("a1", correct(1.0, ts)); err != nil {
			t.Fatalf("setup update failed: %v", err)
		}
		ts = ts.Add(time.Second)
	}

	e.Reset("a1", nil)
	if got := e.GetRepID("a1"); got != DefaultRepID {
		t.Errorf("score after reset = %f, want %f", got, DefaultRepID)
	}
	stats := e.AgentStats("a1")
	if stats.TotalValidations != 0 {
		t.Errorf("total validations after reset = %d, want 0", stats.TotalValidations)
	}
	if stats.IsRecovering {
		t.Error("reset agent must not be recovering")
	}
}

func TestReset_ToExplicitScore(t *testing.T) {
	e := newTestEngine(t)

	score := 250.0
	e.Reset("a1", &score)
	if got := e.GetRepID("a1"); got != 250 {
		t.Errorf("score after reset = %f, want 250", got)
	}

	// Overrides outside the bounds are clamped, not accepted.
	wild := 9999.0
	e.Reset("a1", &wild)
	if got := e.GetRepID("a1"); got != DefaultMaxRepID {
		t.Errorf("out-of-range reset = %f, want clamped to %f", got, DefaultMaxRepID)
	}
}

// ─── Policy Validation ──────────────────────────────────────────────────────

func TestNewEngine_RejectsBadPolicy(t *testing.T) {
	bad := []func(*Policy){
		func(p *Policy) { p.MinRepID = p.MaxRepID },
		func(p *Policy) { p.DecayRate = 0 },
		func(p *Policy) { p.DecayRate = 1.5 },
		func(p *Policy) { p.RecoveryBonus = 0.5 },
		func(p *Policy) { p.BlendNewWeight = 1.2 },
		func(p *Policy) { p.RecoveryWindow = 7 },
		func(p *Policy) { p.UpdateHistoryCap = 1 },
		func(p *Policy) { p.DefaultRepID = 5000 },
	}
	for i, mutate := range bad {
		p := DefaultPolicy()
		mutate(&p)
		if _, err := NewEngine(p); !errors.Is(err, domain.ErrInvalidPolicy) {
			t.Errorf("case %d: error = %v, want ErrInvalidPolicy", i, err)
		}
	}
}

// ─── Persistence Round Trip ─────────────────────────────────────────────────

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	e := newTestEngine(t)

	ts := t0
	for i := 0; i < 12; i++ {
		if _, err := e.UpdateRepID("a1", correct(0.8, ts)); err != nil {
			t.Fatalf("setup update failed: %v", err)
		}
		ts = ts.Add(time.Minute)
	}
	wantScore := e.GetRepID("a1")
	wantStats := e.AgentStats("a1")

	fresh := newTestEngine(t)
	fresh.Restore(e.Snapshot())

	if got := fresh.GetRepID("a1"); !almostEqual(got, wantScore, 1e-9) {
		t.Errorf("restored score = %f, want %f", got, wantScore)
	}
	gotStats := fresh.AgentStats("a1")
	if gotStats.TotalValidations != wantStats.TotalValidations {
		t.Errorf("restored validations = %d, want %d",
			gotStats.TotalValidations, wantStats.TotalValidations)
	}
	if gotStats.Trend != wantStats.Trend {
		t.Errorf("restored trend = %s, want %s", gotStats.Trend, wantStats.Trend)
	}
}

// ─── Concurrency ────────────────────────────────────────────────────────────

func TestUpdateRepID_ConcurrentSameAgent(t *testing.T) {
	e := newTestEngine(t)
	p := e.Policy()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Shared timestamp: equal times are admitted, so no
				// worker can be rejected for ordering.
				if _, err := e.UpdateRepID("contended", correct(0.5, t0)); err != nil {
					t.Errorf("concurrent update failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stats := e.AgentStats("contended")
	if stats.TotalValidations != workers*perWorker {
		t.Errorf("lost updates: total = %d, want %d", stats.TotalValidations, workers*perWorker)
	}
	if stats.CurrentRepID < p.MinRepID || stats.CurrentRepID > p.MaxRepID {
		t.Errorf("score %f escaped bounds under contention", stats.CurrentRepID)
	}
}

func TestUpdateRepID_ConcurrentDistinctAgents(t *testing.T) {
	e := newTestEngine(t)

	const agents = 64
	var wg sync.WaitGroup
	for a := 0; a < agents; a++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%03d", id)
			for i := 0; i < 20; i++ {
				if _, err := e.UpdateRepID(agent, correct(1.0, t0.Add(time.Duration(i)*time.Second))); err != nil {
					t.Errorf("update for %s failed: %v", agent, err)
					return
				}
			}
		}(a)
	}
	wg.Wait()

	if e.AgentCount() != agents {
		t.Errorf("agent count = %d, want %d", e.AgentCount(), agents)
	}
}
