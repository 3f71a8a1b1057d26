package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/pkg/circuitbreaker"
)

const (
	// ExchangeName is the topic exchange notifications are published to.
	ExchangeName = "academy.notifications"
	ExchangeType = "topic"
)

// Publisher publishes notifications to RabbitMQ. Consumers bind queues on
// notification.<type> routing keys and handle push delivery themselves.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewPublisher dials url and declares the notification exchange.
func NewPublisher(rabbitURL string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rabbitmq")

	logger.Info("connecting to RabbitMQ", "url", maskPassword(rabbitURL))

	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("connected to RabbitMQ", "exchange", ExchangeName)

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: ExchangeName,
		logger:   logger,
		breaker: circuitbreaker.BrokerBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		}),
	}, nil
}

// IsTransient reports dial errors worth retrying while the broker starts:
// network failures, a handshake cut short and recoverable AMQP exceptions.
// Refused credentials and a missing vhost are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// *url.Error satisfies net.Error but means the URL itself is wrong
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return false
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover || amqpErr.Code == amqp.ConnectionForced
	}

	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Send implements notification.Sender.
func (p *Publisher) Send(ctx context.Context, msg notification.Message) error {
	if p == nil || p.channel == nil {
		return shared.ErrBrokerUnavailable
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		return p.channel.PublishWithContext(ctx,
			p.exchange,
			msg.Type.RoutingKey(),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now().UTC(),
				MessageId:    uuid.NewString(),
				Type:         string(msg.Type),
			},
		)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", shared.ErrBrokerUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type.RoutingKey(), err)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *Publisher) Ping(context.Context) error {
	if p == nil || p.conn == nil || p.conn.IsClosed() {
		return shared.ErrBrokerUnavailable
	}
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing RabbitMQ channel", "error", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "amqp://***"
	}
	return u.Redacted()
}
