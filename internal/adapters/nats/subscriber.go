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

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	idle time.Duration
	subs []*nats.Subscription
}

var _ ports.EventSubscriber = (*Subscriber)(nil)

// NewSubscriber creates a subscriber. Each subscription gets its own
// ephemeral consumer, so every instance receives every change; the server
// drops a consumer once it has had no subscriber for idle.
func NewSubscriber(url string, idle time.Duration) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, idle: idle}, nil
}

func (s *Subscriber) SubscribeViewChanges(ctx context.Context, gridID string, handler func(ctx context.Context, change *domain.ViewChange) error) error {
	sub, err := s.js.Subscribe(GridSubjects(gridID), func(msg *nats.Msg) {
		var change domain.ViewChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			// Poison message, redelivery will not help.
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &change); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.InactiveThreshold(s.idle),
		nats.DeliverLastPerSubject(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
