package rabbitmq

import (
	"errors"
	"fmt"
	"sort"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchanges and queues used by the pipeline.
//
//	Exchange (topic) --RoutingKey--> Queue
//	Queue  --nack(requeue=false)--> DeadLetterExchange --> DeadLetterQueue
//	RetryQueue(d) --queue TTL d--> Exchange (RoutingKey)
//
// Each backoff delay gets its own retry queue. With a queue-level TTL every
// message in a queue expires in arrival order, so a long delay never holds
// back a short one.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
	// RetryDelays lists the backoff tiers, see RetryPolicy.Delays.
	RetryDelays []time.Duration
}

// ErrNoRetryTier is returned when no retry queues are configured.
var ErrNoRetryTier = errors.New("no retry queues configured")

func (t Topology) RetryQueue(delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%s", t.Queue, delay)
}

// RetryTier picks the shortest configured delay not below delay, or the
// longest one when delay exceeds them all.
func (t Topology) RetryTier(delay time.Duration) (time.Duration, error) {
	if len(t.RetryDelays) == 0 {
		return 0, ErrNoRetryTier
	}
	tiers := append([]time.Duration(nil), t.RetryDelays...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	for _, tier := range tiers {
		if tier >= delay {
			return tier, nil
		}
	}
	return tiers[len(tiers)-1], nil
}

func (t Topology) DeadLetterExchange() string { return t.Exchange + ".dlx" }
func (t Topology) DeadLetterQueue() string    { return t.Queue + ".dlq" }

// Declare creates every exchange, queue and binding idempotently.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if err := ch.ExchangeDeclare(t.DeadLetterExchange(), amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange(), err)
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue(), "", t.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.DeadLetterQueue(), err)
	}

	if _, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange()},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}

	// Expired retry messages flow back into the main exchange.
	for _, delay := range t.RetryDelays {
		if _, err := ch.QueueDeclare(t.RetryQueue(delay), true, false, false, false, amqp.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    t.Exchange,
			"x-dead-letter-routing-key": t.RoutingKey,
		}); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.RetryQueue(delay), err)
		}
	}

	return nil
}
