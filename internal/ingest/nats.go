// Package ingest feeds validation outcomes from a NATS subject into the
// reputation engine, so judges can publish verdicts as events instead of
// calling the HTTP API. Each applied update is published back on a sibling
// subject for downstream consumers.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hyperdag-network/repid/internal/domain"
	"github.com/hyperdag-network/repid/internal/infra/observability"
	"github.com/hyperdag-network/repid/internal/infra/reputation"
)

// ValidationEvent is the wire form of one judged validation.
type ValidationEvent struct {
	AgentID    string    `json:"agent_id"`
	Correct    bool      `json:"correct"`
	Confidence float64   `json:"confidence"`
	Difficulty float64   `json:"difficulty"`
	IsEdgeCase bool      `json:"is_edge_case"`
	Timestamp  time.Time `json:"timestamp"`
}

// Consumer subscribes to validation events and applies them to the engine.
type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	engine  *reputation.Engine
	subject string
	logger  *slog.Logger
}

// NewConsumer connects to NATS. Reconnects are retried in the background so
// a broker restart does not take the daemon down.
func NewConsumer(url, token, subject string, engine *reputation.Engine, logger *slog.Logger) (*Consumer, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Consumer{conn: nc, engine: engine, subject: subject, logger: logger}, nil
}

// Start subscribes to the validation subject.
func (c *Consumer) Start() error {
	sub, err := c.conn.Subscribe(c.subject, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	c.logger.Info("ingest subscribed", "subject", c.subject)
	return nil
}

// handle applies one validation event and publishes the resulting update
// record. Malformed or rejected events are logged and dropped — a bad
// publisher must not wedge the stream.
func (c *Consumer) handle(msg *nats.Msg) {
	update, status := c.apply(msg.Data)
	observability.IngestMessages.WithLabelValues(status).Inc()
	if update == nil {
		return
	}

	if payload, err := json.Marshal(update); err == nil {
		if err := c.conn.Publish(c.subject+".updates", payload); err != nil {
			c.logger.Warn("publish update record failed", "error", err)
		}
	}
}

// apply decodes and applies one event, returning the update record (nil when
// dropped) and the handling status: applied, malformed, or rejected.
func (c *Consumer) apply(data []byte) (*domain.RepIDUpdate, string) {
	var event ValidationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Warn("malformed validation event", "error", err)
		return nil, "malformed"
	}
	if event.AgentID == "" {
		c.logger.Warn("validation event missing agent_id")
		return nil, "malformed"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	update, err := c.engine.UpdateRepID(event.AgentID, domain.ValidationResult{
		Correct:    event.Correct,
		Confidence: event.Confidence,
		Difficulty: event.Difficulty,
		IsEdgeCase: event.IsEdgeCase,
		Timestamp:  event.Timestamp,
	})
	if err != nil {
		c.logger.Warn("validation event rejected", "agent", event.AgentID, "error", err)
		return nil, "rejected"
	}

	c.logger.Debug("validation event applied",
		"agent", event.AgentID, "new", update.NewRepID, "reason", update.Reason)
	return &update, "applied"
}

// Close unsubscribes and drops the connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
}
