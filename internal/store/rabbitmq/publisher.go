package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// ConsolidationJob asks the worker to run one memory consolidation pass.
type ConsolidationJob struct {
	SessionID string `json:"session_id"`
}

// queueSpec is one durable queue declaration.
type queueSpec struct {
	Name string
	Args amqp.Table
}

// Topology returns the declarations for the main, retry, and dead-letter
// queues. Both the publisher and the worker declare from this table: amqp
// rejects a redeclaration with non-equivalent arguments, so the two
// processes must agree byte for byte.
func Topology(queue string) []queueSpec {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	return []queueSpec{
		{Name: dlqQ},
		// Retry queue: message TTL -> dead-letter back to main queue
		{Name: retryQ, Args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		}},
		// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
		{Name: mainQ, Args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		}},
	}
}

// DeclareTopology declares the queue set on the channel.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	for _, q := range Topology(queue) {
		if _, err := ch.QueueDeclare(
			q.Name,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false,
			q.Args,
		); err != nil {
			return err
		}
	}
	return nil
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishConsolidation enqueues a consolidation pass for the session.
func (p *Publisher) PublishConsolidation(ctx context.Context, sessionID string) error {
	body, err := json.Marshal(ConsolidationJob{SessionID: sessionID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
