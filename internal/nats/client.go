package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// Subjects carried over JetStream.
const (
	SubjectPositionsRaw  = "positions.raw"
	SubjectSessionClosed = "billing.sessions.closed"
)

// SessionClosedEvent is delivered to the invoice collaborator when an
// overflight session closes.
type SessionClosedEvent struct {
	Session  *types.OverflightSession `json:"session"`
	Amount   *float64                 `json:"amount,omitempty"`
	ClosedAt time.Time                `json:"closed_at"`
	Forced   bool                     `json:"forced"`
}

// Client represents a NATS client.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client and ensures the position and billing
// streams exist.
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	streams := []*nats.StreamConfig{
		{
			Name:     "POSITIONS",
			Subjects: []string{SubjectPositionsRaw},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
		},
		{
			Name:     "BILLING",
			Subjects: []string{SubjectSessionClosed},
			Storage:  nats.FileStorage,
			MaxAge:   30 * 24 * time.Hour,
		},
	}
	for _, cfg := range streams {
		if _, err := js.AddStream(cfg); err != nil && !strings.Contains(err.Error(), "stream name already in use") {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// PublishReports publishes a batch of position reports.
func (c *Client) PublishReports(reports []types.PositionReport) error {
	data, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}

	if _, err := c.js.Publish(SubjectPositionsRaw, data); err != nil {
		return fmt.Errorf("failed to publish reports: %w", err)
	}
	return nil
}

// SubscribeReports subscribes to raw position report batches. The handler
// receives the undecoded payload so the caller owns validation.
func (c *Client) SubscribeReports(handler func(data []byte)) error {
	_, err := c.js.Subscribe(SubjectPositionsRaw, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// PublishSessionClosed emits the invoice collaborator event for a closed
// overflight session.
func (c *Client) PublishSessionClosed(event *SessionClosedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	if _, err := c.js.Publish(SubjectSessionClosed, data); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// SubscribeSessionClosed subscribes to session-closed billing events.
func (c *Client) SubscribeSessionClosed(handler func(*SessionClosedEvent)) error {
	_, err := c.js.Subscribe(SubjectSessionClosed, func(msg *nats.Msg) {
		var event SessionClosedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			fmt.Printf("Error unmarshaling session event: %v\n", err)
			return
		}
		handler(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
