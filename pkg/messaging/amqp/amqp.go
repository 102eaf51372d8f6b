package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/messaging"
)

type Config struct {
	URL      string
	Topology messaging.Topology
}

// Broker talks to RabbitMQ: a durable topic exchange with one durable queue bound to the
// lifecycle routing keys.
type Broker struct {
	cfg    Config
	logger *logger.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

func NewBroker(cfg Config, logger *logger.Logger) *Broker {
	return &Broker{
		cfg:    cfg,
		logger: logger.With("component", "amqp-broker"),
	}
}

// connectionLocked returns a live connection, dialing when needed. Caller holds b.mu.
func (b *Broker) connectionLocked() (*amqp.Connection, error) {
	if b.closed {
		return nil, messaging.ErrClosed
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}

	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	b.conn = conn
	b.pubCh = nil
	return conn, nil
}

func (b *Broker) declare(ch *amqp.Channel) error {
	t := b.cfg.Topology
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", t.Exchange, err)
	}
	if t.DeadLetter != "" {
		if err := ch.ExchangeDeclare(t.DeadLetter, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter exchange %s: %w", t.DeadLetter, err)
		}
		if _, err := ch.QueueDeclare(t.DeadLetter, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
		if err := ch.QueueBind(t.DeadLetter, "", t.DeadLetter, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue: %w", err)
		}
	}

	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, queueArgs(t))
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", t.Queue, err)
	}
	for _, key := range t.RoutingKeys {
		if err := ch.QueueBind(q.Name, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, q.Name, err)
		}
	}
	return nil
}

func queueArgs(t messaging.Topology) amqp.Table {
	if t.DeadLetter == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": t.DeadLetter}
}

func (b *Broker) Consume(ctx context.Context) (<-chan messaging.Delivery, error) {
	b.mu.Lock()
	conn, err := b.connectionLocked()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := b.declare(ch); err != nil {
		ch.Close()
		return nil, err
	}
	if prefetch := b.cfg.Topology.Prefetch; prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx, b.cfg.Topology.Queue, b.cfg.Topology.ConsumerName, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consuming %s: %w", b.cfg.Topology.Queue, err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	out := make(chan messaging.Delivery)

	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case amqpErr, ok := <-closed:
				if ok && amqpErr != nil {
					b.logger.Warn("AMQP channel closed", "code", amqpErr.Code, "reason", amqpErr.Reason)
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- &delivery{d: d}:
				case <-ctx.Done():
					// unacked; the broker requeues it when the channel closes
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *Broker) Publish(ctx context.Context, routingKey string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.connectionLocked()
	if err != nil {
		return err
	}
	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open publish channel: %w", err)
		}
		if err := ch.ExchangeDeclare(b.cfg.Topology.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			ch.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", b.cfg.Topology.Exchange, err)
		}
		b.pubCh = ch
	}

	return b.pubCh.PublishWithContext(ctx, b.cfg.Topology.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.pubCh != nil {
		b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}

type delivery struct {
	d amqp.Delivery
}

func (d *delivery) RoutingKey() string { return d.d.RoutingKey }

func (d *delivery) Body() []byte { return d.d.Body }

func (d *delivery) Ack() error { return d.d.Ack(false) }

func (d *delivery) Nack(requeue bool) error { return d.d.Nack(false, requeue) }
