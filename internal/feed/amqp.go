package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange change messages are published to.
const DefaultExchange = "ledgerline.changes"

// AMQPBridge relays change notifications between processes sharing a store.
// Each process binds its own exclusive queue to a fanout exchange and ignores
// messages it published itself.
type AMQPBridge struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	url        string
	exchange   string
	queue      string
	instanceID string
	mu         sync.Mutex
}

// NewAMQPBridge dials url and declares the exchange and this instance's queue.
func NewAMQPBridge(url, exchange string) (*AMQPBridge, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	b := &AMQPBridge{
		url:        url,
		exchange:   exchange,
		instanceID: uuid.NewString(),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// InstanceID identifies this process in published messages.
func (b *AMQPBridge) InstanceID() string {
	return b.instanceID
}

func (b *AMQPBridge) connect() error {
	conn, err := amqp091.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		b.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		b.exchange+"."+b.instanceID, // name
		false,                       // durable
		true,                        // delete when unused
		true,                        // exclusive
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, "", b.exchange, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("bind queue: %w", err)
	}

	b.mu.Lock()
	b.conn, b.channel, b.queue = conn, channel, queue.Name
	b.mu.Unlock()
	return nil
}

// PublishChange announces a change for owner to every other instance.
func (b *AMQPBridge) PublishChange(ctx context.Context, owner model.Owner) error {
	body, err := NewChangeMessage(owner, b.instanceID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	channel := b.channel
	b.mu.Unlock()

	err = channel.PublishWithContext(
		ctx,
		b.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}

	slog.DebugContext(ctx, "Published feed change", "owner", owner.String(), "exchange", b.exchange)
	return nil
}

// Run consumes change messages and refreshes local subscribers until ctx is
// done, reconnecting with exponential backoff when the connection drops.
func (b *AMQPBridge) Run(ctx context.Context, hub *Hub) error {
	for attempt := 0; ; attempt++ {
		err := b.consume(ctx, hub)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		delay := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Feed consumer disconnected, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := b.connect(); err != nil {
			slog.WarnContext(ctx, "Feed reconnect failed", "error", err)
		} else {
			attempt = -1
		}
	}
}

func (b *AMQPBridge) consume(ctx context.Context, hub *Hub) error {
	b.mu.Lock()
	channel, queue := b.channel, b.queue
	b.mu.Unlock()

	msgs, err := channel.Consume(
		queue, // queue
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming feed changes", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			b.handle(ctx, hub, delivery.Body)
		}
	}
}

func (b *AMQPBridge) handle(ctx context.Context, hub *Hub, body []byte) {
	msg, err := ChangeMessageFromJSON(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal feed change", "error", err)
		return
	}
	if msg.Origin == b.instanceID {
		return
	}
	owner, err := msg.Owner()
	if err != nil {
		slog.ErrorContext(ctx, "Feed change names an invalid owner", "error", err)
		return
	}
	hub.NotifyLocal(ctx, owner)
}

// Close releases the channel and connection.
func (b *AMQPBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		_ = b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func exponentialBackoff(attempt int) time.Duration {
	const maxDelay = 30 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxDelay
	}
	delay := time.Second << attempt
	return min(delay, maxDelay)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "closed", "eof", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
