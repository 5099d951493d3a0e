// Package notify publishes ledger events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"monoswap/internal/metrics"
	"monoswap/internal/model"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "swapper.ledger"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher sends ledger events to "<prefix>.<op>".
type Publisher struct {
	conn    Conn
	prefix  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Connect dials NATS and returns a publisher.
func Connect(url, prefix string, logger *zap.Logger, m *metrics.Metrics) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("swapper-ledger"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(nc, prefix, logger, m)
	p.logger.Info("nats publisher initialized", zap.String("url", url), zap.String("prefix", p.prefix))
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, logger *zap.Logger, m *metrics.Metrics) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger, metrics: m}
}

// Subject returns the subject an op is published on.
func (p *Publisher) Subject(op model.LedgerOp) string {
	return p.prefix + "." + string(op)
}

// Publish sends the event as JSON. The event id is set as Nats-Msg-Id so
// JetStream streams bound to the subject deduplicate replays.
func (p *Publisher) Publish(ctx context.Context, event model.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	msg := nats.NewMsg(p.Subject(event.Op))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)

	err = p.conn.PublishMsg(msg)
	p.metrics.RecordNotifyPublish("nats", err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.logger.Debug("ledger event published", zap.String("subject", msg.Subject), zap.String("id", event.ID))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.conn.FlushWithContext(ctx)
	p.conn.Close()
	return err
}
