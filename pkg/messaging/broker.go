package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a broker that has been closed.
var ErrClosed = errors.New("broker closed")

// Delivery is one message received from the event topic. Exactly one of Ack or Nack
// must be called once processing finishes.
type Delivery interface {
	RoutingKey() string
	Body() []byte
	Ack() error
	// Nack rejects the message. With requeue false it is dropped, or dead-lettered when
	// the broker has a dead-letter target configured.
	Nack(requeue bool) error
}

// Consumer connects to the durable event topic.
type Consumer interface {
	// Consume declares the topology and starts delivering messages. The returned channel
	// is closed when the connection is lost or ctx is cancelled.
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// Publisher publishes messages to the event topic.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// Broker is implemented by every driver.
type Broker interface {
	Consumer
	Publisher
}

// Topology names the durable topic and queue the notifier uses.
type Topology struct {
	Exchange     string
	Queue        string
	RoutingKeys  []string
	DeadLetter   string
	Prefetch     int
	ConsumerName string
}
