package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes committed-message signals to a topic exchange.
// Routing key: conversation.<tenant_id>.message, so a dashboard process can
// bind per tenant.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// ConnectionOptions bound the dial retry loop.
type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
}

const maxDialDelay = 60 * time.Second

// NewAMQPNotifier dials the broker with exponential backoff and declares the
// exchange. Respects context cancellation for graceful startup aborts.
func NewAMQPNotifier(ctx context.Context, opts ConnectionOptions, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 5
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}

	conn, err := dialWithRetry(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPNotifier{conn: conn, exchange: exchange, log: logger}, nil
}

func (n *AMQPNotifier) Publish(ctx context.Context, event MessageCommitted) error {
	ch, err := n.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("conversation.%d.message", event.TenantID)
	err = ch.PublishWithContext(
		ctx, n.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     uuid.NewString(),
			CorrelationId: uuid.NewString(),
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err == nil {
		n.log.Info("published",
			slog.String("key", key),
			slog.String("exchange", n.exchange),
			slog.Int64("conversation_id", event.ConversationID))
	}
	return err
}

func (n *AMQPNotifier) Close() error {
	return n.conn.Close()
}

func dialWithRetry(ctx context.Context, opts ConnectionOptions, logger *slog.Logger) (*amqp091.Connection, error) {
	var lastErr error

	for i := 1; i <= opts.RetryAttempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				logger.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}

		logger.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w",
		opts.RetryAttempts, lastErr)
}
