// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docent/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Event is the JSON body of an audit message.
type Event struct {
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	OwnerId   string            `json:"owner_id"`
	Timestamp time.Time         `json:"timestamp"`
}

// publisher is the part of *amqp.Channel used by AMQPSink.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes entries as persistent JSON messages to a durable queue.
type AMQPSink struct {
	mu     sync.Mutex
	pub    publisher
	queue  string
	closer func() error
	logger *slog.Logger
}

var _ Sink = (*AMQPSink)(nil)

// DialAMQP connects to url and declares queue as durable.
func DialAMQP(url, queue string) (*AMQPSink, error) {
	if queue == "" {
		return nil, errors.New("amqp queue is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return newAMQPSink(ch, queue, closer), nil
}

func newAMQPSink(pub publisher, queue string, closer func() error) *AMQPSink {
	return &AMQPSink{
		pub:    pub,
		queue:  queue,
		closer: closer,
		logger: slog.Default().With("component", "audit-amqp", "queue", queue),
	}
}

// Record publishes the entry on the default exchange.
func (s *AMQPSink) Record(ctx context.Context, action string, metadata map[string]string, ownerId string) {
	now := time.Now().UTC()
	body, err := json.Marshal(Event{
		Action:    action,
		Metadata:  metadata,
		OwnerId:   ownerId,
		Timestamp: now,
	})
	if err != nil {
		s.fail(action, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.pub.PublishWithContext(cctx,
		"",      // default exchange
		s.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    now,
			Type:         action,
		},
	)
	if err != nil {
		s.fail(action, err)
	}
}

func (s *AMQPSink) fail(action string, err error) {
	metrics.AuditFailures.WithLabelValues("amqp").Inc()
	s.logger.Error("failed to publish audit entry", "action", action, "err", err)
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
