package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subjects for governance events
const (
	SubjectIngested       = "gov.ingested"
	SubjectRecommendation = "gov.recommendation"
	SubjectVote           = "gov.vote"
	SubjectOutcome        = "gov.outcome"
	SubjectStored         = "membase.stored"
)

// Publisher is implemented by anything that can fan out governance events
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBroker encapsulates a NATS connection.
type NATSBroker struct {
	Conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSBroker creates a new NATSBroker connected to the provided URL.
func NewNATSBroker(url string, logger *zap.Logger) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name("eternalgov"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return &NATSBroker{Conn: nc, logger: logger}, nil
}

// Publish sends data on the provided subject.
func (b *NATSBroker) Publish(subject string, data []byte) error {
	b.logger.Debug("publishing", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return b.Conn.Publish(subject, data)
}

// Subscribe registers a callback for a specific subject.
func (b *NATSBroker) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return b.Conn.Subscribe(subject, cb)
}

// Close drains pending messages and closes the connection.
func (b *NATSBroker) Close() {
	if err := b.Conn.Drain(); err != nil {
		b.Conn.Close()
	}
}

// PublishJSON marshals v and publishes it. A nil publisher is a no-op.
func PublishJSON(p Publisher, subject string, v interface{}) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	return p.Publish(subject, data)
}
