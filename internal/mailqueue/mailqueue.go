// Package mailqueue carries outgoing mail messages from the API to the mail
// worker through a durable RabbitMQ queue.
package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/domain"
)

const QueueName = "email_queue"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Declare creates the queue if it does not exist yet. Both the API and the
// worker call it so either can start first.
func Declare(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
}

type Publisher struct {
	ch      Channel
	timeout time.Duration
}

func NewPublisher(ch Channel, timeout time.Duration) *Publisher {
	return &Publisher{ch: ch, timeout: timeout}
}

func (p *Publisher) Publish(ctx context.Context, msg domain.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ch.PublishWithContext(
		ctx,
		"",
		QueueName,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("publish %s mail: %w", msg.Type, err)
	}

	return nil
}

// Decode parses a delivery body. Data is left as raw JSON so the worker can
// hand it to the template of the message type.
func Decode(body []byte) (string, string, json.RawMessage, error) {
	var msg struct {
		Type string          `json:"type"`
		To   string          `json:"to"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", "", nil, err
	}
	if msg.Type == "" || msg.To == "" {
		return "", "", nil, fmt.Errorf("mail message without type or recipient")
	}
	return msg.Type, msg.To, msg.Data, nil
}
