package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/messaging"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConsuming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConsuming:
		return "consuming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

type Handler interface {
	Handle(ctx context.Context, routingKey string, body []byte) error
}

type Options struct {
	Concurrency     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Consumer pulls lifecycle events from the broker and hands them to a Handler. Messages
// are acked after successful handling and nacked without requeue otherwise. The broker
// connection is re-established with exponential backoff until the context ends.
type Consumer struct {
	source  messaging.Consumer
	handler Handler
	opts    Options
	metrics *metrics.Metrics
	logger  *logger.Logger
	state   atomic.Int32
}

func New(source messaging.Consumer, handler Handler, opts Options, m *metrics.Metrics, log *logger.Logger) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	return &Consumer{
		source:  source,
		handler: handler,
		opts:    opts,
		metrics: m,
		logger:  log.With("component", "consumer"),
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.ConsumerState.Set(float64(s))
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	defer c.setState(StateDisconnected)
	c.setState(StateConnecting)

	for {
		deliveries, err := c.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := b.NextBackOff()
			c.logger.Error(err, "Failed to start consuming, retrying", "retry_in", wait.String())
			c.setState(StateReconnecting)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		c.setState(StateConsuming)
		b.Reset()
		c.logger.Info("Consuming task events", "concurrency", c.opts.Concurrency)

		c.drain(ctx, deliveries)

		if ctx.Err() != nil {
			return nil
		}

		c.setState(StateReconnecting)
		wait := b.NextBackOff()
		c.logger.Warn("Delivery stream closed, reconnecting", "retry_in", wait.String())
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan messaging.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.process(ctx, d)
			}
		}()
	}
	wg.Wait()
}

func (c *Consumer) process(ctx context.Context, d messaging.Delivery) {
	start := time.Now()
	eventType := string(model.EventTypeFromRoutingKey(d.RoutingKey()))

	err := c.handler.Handle(ctx, d.RoutingKey(), d.Body())
	c.metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.EventsConsumed.WithLabelValues(eventType, "nack").Inc()
		c.logger.Error(err, "Rejecting task event", "routing_key", d.RoutingKey())
		if nackErr := d.Nack(false); nackErr != nil {
			c.logger.Error(nackErr, "Failed to nack task event", "routing_key", d.RoutingKey())
		}
		return
	}

	c.metrics.EventsConsumed.WithLabelValues(eventType, "ack").Inc()
	if ackErr := d.Ack(); ackErr != nil {
		c.logger.Error(ackErr, "Failed to ack task event", "routing_key", d.RoutingKey())
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
