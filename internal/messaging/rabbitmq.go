package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"melodia-chat/internal/domain"
)

const (
	eventsExchange = "chat.events"

	routingKeyMessageCreated = "message.created"
	routingKeyMessageDeleted = "message.deleted"
)

// RabbitMQ mirrors chat events onto a topic exchange for downstream
// consumers (search indexers, moderation, analytics). Delivery to clients
// never depends on it.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// MessageCreatedEvent is published after a message is persisted.
type MessageCreatedEvent struct {
	ID         int64  `json:"id"`
	Room       string `json:"room"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
}

// MessageDeletedEvent is published after a message is removed.
type MessageDeletedEvent struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Timestamp int64  `json:"timestamp"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials the broker with backoff until the context
// expires. Brokers often come up after the app in compose environments.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := time.Second

	for {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq connection failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connection retries exhausted: %w", err)
		case <-time.After(backoff):
		}

		if backoff < 16*time.Second {
			backoff *= 2
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		eventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		eventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}
	return nil
}

// PublishMessageCreated mirrors a persisted message onto the events exchange.
func (r *RabbitMQ) PublishMessageCreated(ctx context.Context, msg *domain.ChatMessage) error {
	event := MessageCreatedEvent{
		ID:         msg.ID,
		Room:       msg.Room,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt.Unix(),
	}
	if err := r.publish(ctx, routingKeyMessageCreated, event); err != nil {
		return err
	}

	slog.Info("published message.created event",
		slog.Int64("message_id", msg.ID),
		slog.String("room", msg.Room))
	return nil
}

// PublishMessageDeleted mirrors a message deletion onto the events exchange.
func (r *RabbitMQ) PublishMessageDeleted(ctx context.Context, id int64, room string) error {
	event := MessageDeletedEvent{
		ID:        id,
		Room:      room,
		Timestamp: time.Now().Unix(),
	}
	if err := r.publish(ctx, routingKeyMessageDeleted, event); err != nil {
		return err
	}

	slog.Info("published message.deleted event",
		slog.Int64("message_id", id),
		slog.String("room", room))
	return nil
}

// ConsumeEvents binds an exclusive queue to the events exchange and returns
// its delivery channel. pattern follows AMQP topic matching ("message.*").
func (r *RabbitMQ) ConsumeEvents(pattern string) (<-chan amqp.Delivery, error) {
	q, err := r.channel.QueueDeclare(
		"",    // name, broker-generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare events queue: %w", err)
	}

	if err := r.channel.QueueBind(q.Name, pattern, eventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind events queue: %w", err)
	}

	msgs, err := r.channel.Consume(
		q.Name,
		"",
		true, // auto-ack, mirror consumers are best-effort
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming chat events",
		slog.String("queue", q.Name),
		slog.String("pattern", pattern))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
