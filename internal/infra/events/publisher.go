// Package events publishes quiz outcomes to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// Routing keys.
const (
	TypeSessionCompleted = "session.completed"
	TypeCompetencePassed = "competence.passed"
)

// Event is the envelope of every published message.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type SessionCompleted struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	Competence string `json:"competence"`
	Level      string `json:"level"`
	Score      int    `json:"score"`
	Passed     bool   `json:"passed"`
}

type CompetencePassed struct {
	UserID     string `json:"userId"`
	Competence string `json:"competence"`
	Level      string `json:"level"`
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends events to a topic exchange, using the event type as the
// routing key.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPublisher dials RabbitMQ and declares a durable topic exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger, now: time.Now}, nil
}

func (p *Publisher) PublishSessionCompleted(ctx context.Context, s *entities.Session) error {
	return p.publish(ctx, TypeSessionCompleted, SessionCompleted{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Competence: s.Competence,
		Level:      s.NormalizedLevel().String(),
		Score:      s.Score,
		Passed:     s.Passed,
	})
}

func (p *Publisher) PublishCompetencePassed(ctx context.Context, userID, competence string, level entities.Level) error {
	return p.publish(ctx, TypeCompetencePassed, CompetencePassed{
		UserID:     userID,
		Competence: competence,
		Level:      level.String(),
	})
}

func (p *Publisher) publish(ctx context.Context, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(Event{Type: eventType, OccurredAt: p.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	p.logger.Debug("event published", zap.String("type", eventType))
	return nil
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSessionCompleted(context.Context, *entities.Session) error { return nil }

func (NopPublisher) PublishCompetencePassed(context.Context, string, string, entities.Level) error {
	return nil
}
