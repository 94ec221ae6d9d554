package queue

import (
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes to a durable RabbitMQ queue. Consumption happens in
// cmd/worker; Subscribe here exists only to satisfy the interface for
// publish-side wiring.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, channel: ch}, nil
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	queue, err := q.channel.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return q.channel.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	return fmt.Errorf("amqp consumption is handled by the worker binary")
}

func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
var _ Queue = (*InMemoryQueue)(nil)
