package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

// Producer publishes to the pipeline exchange with publisher confirms.
type Producer struct {
	mu      sync.Mutex
	channel *amqp.Channel
	topo    Topology
	log     zerolog.Logger
}

// NewProducer opens a confirm-mode channel on conn and declares the topology.
func NewProducer(conn *amqp.Connection, topo Topology, log zerolog.Logger) (*Producer, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := topo.Declare(channel); err != nil {
		channel.Close()
		return nil, err
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info().Str("exchange", topo.Exchange).Str("routing_key", topo.RoutingKey).Msg("✓ Producer ready")

	return &Producer{channel: channel, topo: topo, log: log}, nil
}

// Publish sends a ProcessingRequest to the main exchange and waits for the broker confirm.
func (p *Producer) Publish(ctx context.Context, req types.ProcessingRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.DocumentKey,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.publish(ctx, p.topo.Exchange, p.topo.RoutingKey, msg); err != nil {
		return err
	}

	p.log.Debug().Str("document_key", req.DocumentKey).Msg("Published processing request")
	return nil
}

// PublishRetry parks body on the retry queue for delay's tier; the broker
// then dead-letters it back to the main exchange.
func (p *Producer) PublishRetry(ctx context.Context, body []byte, attempt int, delay time.Duration) error {
	tier, err := p.topo.RetryTier(delay)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{RetryCountHeader: int32(attempt)},
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	return p.publish(ctx, "", p.topo.RetryQueue(tier), msg)
}

// Republish sends an already-encoded message to the main exchange with a fresh retry count.
func (p *Producer) Republish(ctx context.Context, body []byte, messageID string) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	return p.publish(ctx, p.topo.Exchange, p.topo.RoutingKey, msg)
}

func (p *Producer) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

// Close closes the producer channel. The connection is owned by the caller.
func (p *Producer) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
