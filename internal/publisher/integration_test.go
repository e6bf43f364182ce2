//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"placement_notifier/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishNewOffer() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-offer",
		RoutingKey: "test-routing-key-offer",
		QueueName:  "test-queue-offer",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	event := &domain.ChangeEvent{
		Kind: domain.EventNewOffer,
		Offer: &domain.PlacementOffer{
			ID:          1,
			Company:     "Acme Corp",
			Role:        "SDE",
			AnnouncedOn: "2026-08-14",
			Package:     "12 LPA",
			Students: domain.StudentSet{
				{Name: "Asha Verma", Enrollment: "0101CS221001"},
			},
		},
	}

	err = pub.Publish(s.ctx, event)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)
	s.Equal("application/json", msg.ContentType)

	var received ChangeMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("new_offer", received.Action)
	s.Require().NotNil(received.Offer)
	s.Equal("Acme Corp", received.Offer.Company)
	s.Equal("SDE", received.Offer.Role)
	s.Len(received.Offer.Students, 1)
	s.Nil(received.Notice)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishUpdateOffer() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-update",
		RoutingKey: "test-routing-key-update",
		QueueName:  "test-queue-update",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	event := &domain.ChangeEvent{
		Kind: domain.EventUpdatedOffer,
		Offer: &domain.PlacementOffer{
			ID:      2,
			Company: "Acme Corp",
			Role:    "SDE",
			Students: domain.StudentSet{
				{Name: "Asha Verma", Enrollment: "0101CS221001"},
				{Name: "Rohan Gupta", Enrollment: "0101CS221002"},
			},
		},
		Delta: &domain.OfferDelta{
			AddedStudents: domain.StudentSet{
				{Name: "Rohan Gupta", Enrollment: "0101CS221002"},
			},
		},
	}

	err = pub.Publish(s.ctx, event)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ChangeMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("update_offer", received.Action)
	s.Require().NotNil(received.Delta)
	s.Len(received.Delta.AddedStudents, 1)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishNewNotice() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-notice",
		RoutingKey: "test-routing-key-notice",
		QueueName:  "test-queue-notice",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	event := &domain.ChangeEvent{
		Kind: domain.EventNewNotice,
		Notice: &domain.Notice{
			ID:       3,
			Title:    "Resume submission deadline",
			Category: domain.CategoryReminder,
			Source:   "Training and Placement Cell",
			Deadline: "2026-08-20",
			Links:    []string{"https://forms.example.com/resume"},
		},
	}

	err = pub.Publish(s.ctx, event)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ChangeMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("new_notice", received.Action)
	s.Require().NotNil(received.Notice)
	s.Equal("reminder", received.Notice.Category)
	s.Equal("2026-08-20", received.Notice.Deadline)
	s.Nil(received.Offer)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-persist",
		RoutingKey: "test-routing-key-persist",
		QueueName:  "test-queue-persist",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	event := &domain.ChangeEvent{
		Kind: domain.EventNewNotice,
		Notice: &domain.Notice{
			ID:    4,
			Title: "Persistent notice",
		},
	}

	err = pub.Publish(s.ctx, event)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
