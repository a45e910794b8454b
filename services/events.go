package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type EventType string

const (
	EventSessionStarted   EventType = "quiz.session.started"
	EventAnswerRecorded   EventType = "quiz.answer.recorded"
	EventSessionCompleted EventType = "quiz.session.completed"
)

// QuizEvent describes something that happened to a session. Optional fields
// are set only for the event types they apply to.
type QuizEvent struct {
	Type        EventType                `json:"type"`
	SessionID   uuid.UUID                `json:"session_id"`
	CandidateID uuid.UUID                `json:"candidate_id"`
	TrackID     uint                     `json:"track_id"`
	QuestionID  *uuid.UUID               `json:"question_id,omitempty"`
	IsCorrect   *bool                    `json:"is_correct,omitempty"`
	Reason      *models.CompletionReason `json:"reason,omitempty"`
	Score       *float64                 `json:"score,omitempty"`
	Timestamp   time.Time                `json:"timestamp"`
}

// EventSink receives quiz events after the change they describe is committed.
type EventSink interface {
	Publish(ctx context.Context, event QuizEvent) error
}

// MultiSink fans an event out to every sink, returning the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event QuizEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EventPublisher publishes quiz events to a RabbitMQ topic exchange, using
// the event type as routing key. With an empty URI it is a disabled no-op.
type EventPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
}

func NewEventPublisher(rabbitURI, exchange string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{exchange: exchange, enabled: false}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Printf("Event publisher initialized with exchange: %s", exchange)

	return &EventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
	}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, event QuizEvent) error {
	if !p.enabled {
		VerboseLog("Event publishing disabled, skipping event: %s", event.Type)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,         // exchange
		string(event.Type), // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
			Headers: amqp091.Table{
				"event_type": string(event.Type),
				"session_id": event.SessionID.String(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	VerboseLog("Published event: %s for session: %s", event.Type, event.SessionID)
	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}
