package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"placement_notifier/internal/domain"
)

// RabbitMQ publishes change events for downstream consumers (archival,
// analytics, external bots). Publishing is best effort from the pipeline's
// point of view; delivery to subscribers never depends on the broker.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// ChangeMessage is the wire format for one change event.
type ChangeMessage struct {
	Action    string             `json:"action"` // "new_offer", "update_offer" or "new_notice"
	Offer     *OfferPayload      `json:"offer,omitempty"`
	Notice    *NoticePayload     `json:"notice,omitempty"`
	Delta     *domain.OfferDelta `json:"delta,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

type OfferPayload struct {
	ID          int64             `json:"id"`
	Company     string            `json:"company"`
	Role        string            `json:"role"`
	AnnouncedOn string            `json:"announced_on"`
	Package     string            `json:"package,omitempty"`
	Students    domain.StudentSet `json:"students"`
}

type NoticePayload struct {
	ID       int64             `json:"id"`
	Title    string            `json:"title"`
	Category string            `json:"category"`
	Source   string            `json:"source,omitempty"`
	Deadline string            `json:"deadline,omitempty"`
	Links    []string          `json:"links,omitempty"`
	Students domain.StudentSet `json:"students,omitempty"`
}

// Publish sends one change event to the exchange.
func (r *RabbitMQ) Publish(ctx context.Context, event *domain.ChangeEvent) error {
	msg := ChangeMessage{
		Action:    string(event.Kind),
		Delta:     event.Delta,
		Timestamp: time.Now().UTC(),
	}

	if event.Offer != nil {
		msg.Offer = &OfferPayload{
			ID:          event.Offer.ID,
			Company:     event.Offer.Company,
			Role:        event.Offer.Role,
			AnnouncedOn: event.Offer.AnnouncedOn,
			Package:     event.Offer.Package,
			Students:    event.Offer.Students,
		}
	}
	if event.Notice != nil {
		msg.Notice = &NoticePayload{
			ID:       event.Notice.ID,
			Title:    event.Notice.Title,
			Category: string(event.Notice.Category),
			Source:   event.Notice.Source,
			Deadline: event.Notice.Deadline,
			Links:    event.Notice.Links,
			Students: event.Notice.Students,
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published change event", "action", msg.Action)

	return nil
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
