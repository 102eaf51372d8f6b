package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/messaging"
)

const (
	fieldRoutingKey = "routing_key"
	fieldPayload    = "payload"
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// Connect builds a client with NewClient and pings the server.
func Connect(ctx context.Context, config Config) (*redis.Client, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewClient parses the URL and applies pool settings without touching the network.
func NewClient(config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	return redis.NewClient(opts), nil
}

// StreamBroker carries lifecycle events over a Redis stream read through a consumer group.
// Topology.Exchange is the stream, Topology.Queue the group and Topology.DeadLetter an
// optional stream receiving rejected messages.
type StreamBroker struct {
	client   *redis.Client
	topology messaging.Topology
	bindings map[string]bool
	block    time.Duration
	maxLen   int64
	logger   *logger.Logger
}

type StreamOptions struct {
	// Block bounds each XREADGROUP call so cancellation is noticed.
	Block time.Duration
	// MaxLen caps the stream length (approximate trimming); 0 disables trimming.
	MaxLen int64
}

func NewStreamBroker(client *redis.Client, topology messaging.Topology, opts StreamOptions, logger *logger.Logger) *StreamBroker {
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if topology.Prefetch <= 0 {
		topology.Prefetch = 10
	}
	bindings := make(map[string]bool, len(topology.RoutingKeys))
	for _, key := range topology.RoutingKeys {
		bindings[key] = true
	}
	return &StreamBroker{
		client:   client,
		topology: topology,
		bindings: bindings,
		block:    opts.Block,
		maxLen:   opts.MaxLen,
		logger:   logger.With("component", "redis-stream-broker"),
	}
}

func (b *StreamBroker) Publish(ctx context.Context, routingKey string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: b.topology.Exchange,
		Values: map[string]interface{}{
			fieldRoutingKey: routingKey,
			fieldPayload:    payload,
		},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", b.topology.Exchange, err)
	}
	return nil
}

func (b *StreamBroker) ensureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.topology.Exchange, b.topology.Queue, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", b.topology.Queue, err)
	}
	return nil
}

func (b *StreamBroker) Consume(ctx context.Context) (<-chan messaging.Delivery, error) {
	if err := b.ensureGroup(ctx); err != nil {
		return nil, err
	}

	out := make(chan messaging.Delivery)

	go func() {
		defer close(out)

		for {
			if ctx.Err() != nil {
				return
			}

			streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.topology.Queue,
				Consumer: b.topology.ConsumerName,
				Streams:  []string{b.topology.Exchange, ">"},
				Count:    int64(b.topology.Prefetch),
				Block:    b.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Error(err, "Failed to read from stream", "stream", b.topology.Exchange)
				}
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					d := b.newDelivery(msg)
					if len(b.bindings) > 0 && !b.bindings[d.routingKey] {
						// not bound to this consumer; drop it like an unrouted topic message
						if err := d.Ack(); err != nil {
							b.logger.Error(err, "Failed to ack unbound stream entry", "routing_key", d.routingKey, "id", d.id)
						}
						continue
					}
					select {
					case out <- d:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the client belongs to whoever passed it in.
func (b *StreamBroker) Close() error {
	return nil
}

func (b *StreamBroker) newDelivery(msg redis.XMessage) *streamDelivery {
	d := &streamDelivery{broker: b, id: msg.ID}
	if v, ok := msg.Values[fieldRoutingKey].(string); ok {
		d.routingKey = v
	}
	if v, ok := msg.Values[fieldPayload].(string); ok {
		d.body = []byte(v)
	}
	return d
}

type streamDelivery struct {
	broker     *StreamBroker
	id         string
	routingKey string
	body       []byte
}

func (d *streamDelivery) RoutingKey() string { return d.routingKey }

func (d *streamDelivery) Body() []byte { return d.body }

func (d *streamDelivery) Ack() error {
	ctx := context.Background()
	return d.broker.client.XAck(ctx, d.broker.topology.Exchange, d.broker.topology.Queue, d.id).Err()
}

// Nack acks the entry and, with requeue, appends it to the stream again. Without requeue
// it is copied to the dead-letter stream when one is configured.
func (d *streamDelivery) Nack(requeue bool) error {
	ctx := context.Background()
	t := d.broker.topology

	target := ""
	switch {
	case requeue:
		target = t.Exchange
	case t.DeadLetter != "":
		target = t.DeadLetter
	}

	_, err := d.broker.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if target != "" {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: target,
				Values: map[string]interface{}{
					fieldRoutingKey: d.routingKey,
					fieldPayload:    d.body,
				},
			})
		}
		pipe.XAck(ctx, t.Exchange, t.Queue, d.id)
		return nil
	})
	return err
}
