package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hyperdag-network/repid/internal/infra/reputation"
)

// newTestConsumer builds a consumer without a broker connection — apply
// never touches the wire, only handle's publish step does.
func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()
	engine, err := reputation.NewEngine(reputation.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return &Consumer{
		engine:  engine,
		subject: "repid.validations",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestApply_ValidEvent(t *testing.T) {
	c := newTestConsumer(t)

	payload, _ := json.Marshal(ValidationEvent{
		AgentID:    "a1",
		Correct:    true,
		Confidence: 0.5,
		Difficulty: 1.0,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	update, status := c.apply(payload)
	if status != "applied" {
		t.Fatalf("status = %s, want applied", status)
	}
	if update == nil || update.NewRepID != 107 {
		t.Errorf("update = %+v, want new repid 107", update)
	}
	if got := c.engine.GetRepID("a1"); got != 107 {
		t.Errorf("engine score = %f, want 107", got)
	}
}

func TestApply_MalformedPayload(t *testing.T) {
	c := newTestConsumer(t)

	update, status := c.apply([]byte("{broken"))
	if status != "malformed" || update != nil {
		t.Errorf("got (%v, %s), want (nil, malformed)", update, status)
	}
}

func TestApply_MissingAgentID(t *testing.T) {
	c := newTestConsumer(t)

	payload, _ := json.Marshal(ValidationEvent{Correct: true, Confidence: 0.5, Difficulty: 0.5})
	update, status := c.apply(payload)
	if status != "malformed" || update != nil {
		t.Errorf("got (%v, %s), want (nil, malformed)", update, status)
	}
}

func TestApply_RejectedByEngine(t *testing.T) {
	c := newTestConsumer(t)

	payload, _ := json.Marshal(ValidationEvent{
		AgentID:    "a1",
		Confidence: 2.0, // out of range
		Difficulty: 0.5,
	})
	update, status := c.apply(payload)
	if status != "rejected" || update != nil {
		t.Errorf("got (%v, %s), want (nil, rejected)", update, status)
	}
}

func TestApply_DefaultsTimestamp(t *testing.T) {
	c := newTestConsumer(t)

	payload, _ := json.Marshal(ValidationEvent{AgentID: "a1", Correct: true, Confidence: 0.5, Difficulty: 0.5})
	if _, status := c.apply(payload); status != "applied" {
		t.Errorf("status = %s, want applied (timestamp should be stamped)", status)
	}
}
