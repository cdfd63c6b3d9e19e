package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

const (
	// StreamName is the JetStream stream holding view changes.
	StreamName    = "NDVI_VIEW"
	subjectPrefix = "ndvi.view."
)

// Subject returns the subject of a change kind on a grid.
func Subject(gridID string, kind domain.ChangeKind) string {
	return subjectPrefix + gridID + "." + string(kind)
}

// GridSubjects returns the wildcard subject of every change on a grid.
func GridSubjects(gridID string) string {
	return subjectPrefix + gridID + ".>"
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure the stream exists
	cfg := nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		// Only the latest zoom and the latest move of each grid matter.
		MaxMsgsPerSubject: 1,
		Storage:           nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishViewChange(ctx context.Context, change *domain.ViewChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(Subject(change.GridID, change.Kind), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("ndvigrid"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
