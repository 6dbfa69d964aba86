package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes messages as JSON to a topic exchange. The routing
// key is "<purpose>.<channel>".
type AMQPNotifier struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	if exchange == "" {
		exchange = "pearl.notifications"
	}
	n := &AMQPNotifier{url: url, exchange: exchange}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.connectLocked(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AMQPNotifier) connectLocked() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp declare exchange: %w", err)
	}
	n.conn, n.ch = conn, ch
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	pub, err := publishing(msg)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		if err := n.connectLocked(); err != nil {
			return err
		}
	}
	return n.ch.PublishWithContext(ctx, n.exchange, routingKey(msg), false, false, pub)
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

func publishing(msg Message) (amqp.Publishing, error) {
	body, err := encode(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    ts,
		Type:         msg.Purpose,
		Body:         body,
	}, nil
}

func routingKey(msg Message) string {
	purpose := msg.Purpose
	if purpose == "" {
		purpose = "general"
	}
	return purpose + "." + string(msg.Channel)
}
