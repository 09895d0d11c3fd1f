// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
)

// DefaultQueue is the queue notification jobs are published to.
const DefaultQueue = "storefront.notifications"

// AMQPConfig configures the AMQP transport.
type AMQPConfig struct {
	URL   string
	Queue string
}

// publisher is the part of *amqp.Channel the sender uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// job is the JSON body consumed by the mail worker.
type job struct {
	Message
	CreatedAt time.Time `json:"created_at"`
}

// AMQPSender publishes messages as persistent JSON jobs for an external
// mail worker.
type AMQPSender struct {
	queue string
	ch    publisher
	close func() error
	now   func() time.Time
}

// DialAMQP connects to the broker, opens a channel and declares the durable
// queue.
func DialAMQP(cfg AMQPConfig) (*AMQPSender, error) {
	if cfg.URL == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").With("field", "amqp.url").Errorf("amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, oops.Code("NOTIFY_AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_AMQP_CHANNEL_FAILED").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_AMQP_DECLARE_FAILED").With("queue", queue).Wrap(err)
	}

	s := newAMQPSender(ch, queue)
	s.close = func() error {
		chErr := ch.Close()
		if err := conn.Close(); err != nil {
			return err
		}
		return chErr
	}
	return s, nil
}

func newAMQPSender(ch publisher, queue string) *AMQPSender {
	return &AMQPSender{queue: queue, ch: ch, close: func() error { return nil }, now: time.Now}
}

// Send publishes msg to the queue through the default exchange.
func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	now := s.now().UTC()
	body, err := json.Marshal(job{Message: msg, CreatedAt: now})
	if err != nil {
		return oops.Code("NOTIFY_AMQP_ENCODE_FAILED").Wrap(permanent(err))
	}

	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         string(msg.Kind),
		Body:         body,
	})
	if err != nil {
		return oops.Code("NOTIFY_AMQP_PUBLISH_FAILED").
			With("queue", s.queue).
			With("kind", string(msg.Kind)).
			Wrap(err)
	}
	return nil
}

// Close closes the channel and connection.
func (s *AMQPSender) Close() error {
	if err := s.close(); err != nil {
		return oops.Code("NOTIFY_AMQP_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
