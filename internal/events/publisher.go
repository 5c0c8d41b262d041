package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

// ClickRoutingKey is the routing key click events are published with.
const ClickRoutingKey = "url.click"

// ClickEvent is emitted after a short code was successfully resolved.
type ClickEvent struct {
	ShortCode  string    `json:"short_code"`
	Clicks     int64     `json:"clicks"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers click events to downstream consumers.
type Publisher interface {
	PublishClick(ctx context.Context, ev ClickEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishClick(context.Context, ClickEvent) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes click events to a topic exchange. A circuit
// breaker stops hammering the broker once publishes keep failing.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       channel
	exchange string
	breaker  *gobreaker.CircuitBreaker
}

// NewAMQPPublisher opens a channel on conn and declares exchange.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, exchange, defaultBreakerSettings())
	if err != nil {
		ch.Close()
		return nil, err
	}
	return p, nil
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "amqp-click-publisher",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

func newAMQPPublisher(ch channel, exchange string, settings gobreaker.Settings) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}, nil
}

// PublishClick sends ev as a persistent JSON message. When the breaker is
// open the call fails fast with gobreaker.ErrOpenState.
func (p *AMQPPublisher) PublishClick(ctx context.Context, ev ClickEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return nil, p.ch.PublishWithContext(ctx, p.exchange, ClickRoutingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		})
	})
	return err
}

// Close closes the underlying channel.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)
