package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// Handler processes one request and decides its fate on the broker.
type Handler func(ctx context.Context, req types.ProcessingRequest) types.Decision

// RetryPublisher parks a message for delayed redelivery.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

// ConsumerOptions tunes the consumer.
type ConsumerOptions struct {
	Prefetch    int
	Concurrency int
	Policy      RetryPolicy
	// PublishTimeout bounds the retry republish.
	PublishTimeout time.Duration
}

// Consumer pulls deliveries from the pipeline queue and runs each one on its
// own pooled task, so a slow extraction never holds up unrelated messages.
type Consumer struct {
	channel *amqp.Channel
	topo    Topology
	tag     string
	pool    *ants.Pool
	retry   RetryPublisher
	opts    ConsumerOptions
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewConsumer opens a channel, declares the topology and sets the prefetch window.
func NewConsumer(conn *amqp.Connection, topo Topology, retry RetryPublisher, opts ConsumerOptions, log zerolog.Logger) (*Consumer, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := topo.Declare(channel); err != nil {
		channel.Close()
		return nil, err
	}

	if err := channel.Qos(opts.Prefetch, 0, false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	pool, err := ants.NewPool(opts.Concurrency)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	log.Info().
		Str("queue", topo.Queue).
		Int("prefetch", opts.Prefetch).
		Int("concurrency", opts.Concurrency).
		Msg("✓ Consumer ready")

	return &Consumer{
		channel: channel,
		topo:    topo,
		tag:     "pdf-worker",
		pool:    pool,
		retry:   retry,
		opts:    opts,
		log:     log,
	}, nil
}

// Start consumes until ctx is cancelled or the delivery channel closes.
// In-flight messages are allowed to finish before Start returns.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	msgs, err := c.channel.Consume(
		c.topo.Queue,
		c.tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Msg("[*] Waiting for messages")
	defer c.wg.Wait()

	// Tasks outlive shutdown so they can ack; each external call has its own timeout.
	taskCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			if err := c.channel.Cancel(c.tag, false); err != nil {
				c.log.Warn().Err(err).Msg("Failed to cancel consumer")
			}
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.wg.Add(1)
			if err := c.pool.Submit(func() {
				defer c.wg.Done()
				c.handleDelivery(taskCtx, d, handle)
			}); err != nil {
				c.wg.Done()
				c.log.Error().Err(err).Msg("Failed to schedule delivery, requeueing")
				_ = d.Nack(false, true)
			}
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	var req types.ProcessingRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("[✗] Undecodable message, dead-lettering")
		c.settle(d.Nack(false, false))
		return
	}

	attempt := retryCount(d.Headers) + 1
	log := c.log.With().Str("document_key", req.DocumentKey).Int("attempt", attempt).Logger()

	switch decision := handle(ctx, req); decision {
	case types.Ack:
		c.settle(d.Ack(false))

	case types.Reject:
		log.Warn().Msg("Rejecting message to dead-letter queue")
		c.settle(d.Nack(false, false))

	case types.Requeue:
		if c.opts.Policy.Exhausted(attempt) {
			log.Error().Int("max_attempts", c.opts.Policy.MaxAttempts).Msg("[✗] Retries exhausted, dead-lettering")
			c.settle(d.Nack(false, false))
			return
		}

		delay := c.opts.Policy.Delay(attempt)
		pubCtx, cancel := context.WithTimeout(ctx, c.publishTimeout())
		err := c.retry.PublishRetry(pubCtx, d.Body, attempt, delay)
		cancel()
		if err != nil {
			// The message must not be lost; let the broker redeliver it now.
			log.Warn().Err(err).Msg("Retry publish failed, requeueing immediately")
			c.settle(d.Nack(false, true))
			return
		}
		log.Info().Dur("delay", delay).Msg("Scheduled retry")
		c.settle(d.Ack(false))

	default:
		log.Error().Str("decision", decision.String()).Msg("Unknown decision, requeueing")
		c.settle(d.Nack(false, true))
	}
}

func (c *Consumer) publishTimeout() time.Duration {
	if c.opts.PublishTimeout > 0 {
		return c.opts.PublishTimeout
	}
	return 10 * time.Second
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to settle delivery")
	}
}

// Close releases the pool and channel. Call after Start returns.
func (c *Consumer) Close() error {
	if c.pool != nil {
		c.pool.Release()
	}
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}
