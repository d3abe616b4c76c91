package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Republisher puts a dead-lettered body back on the main exchange.
type Republisher interface {
	Republish(ctx context.Context, body []byte, messageID string) error
}

// ReplayDeadLetters moves up to limit messages from the dead-letter queue back
// to the main exchange with a fresh retry budget. It stops early when the DLQ is empty.
func ReplayDeadLetters(ctx context.Context, conn *amqp.Connection, topo Topology, pub Republisher, limit int, log zerolog.Logger) (int, error) {
	channel, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	if err := topo.Declare(channel); err != nil {
		return 0, err
	}

	replayed := 0
	for replayed < limit {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		d, ok, err := channel.Get(topo.DeadLetterQueue(), false)
		if err != nil {
			return replayed, fmt.Errorf("get from %s: %w", topo.DeadLetterQueue(), err)
		}
		if !ok {
			break
		}

		if err := pub.Republish(ctx, d.Body, d.MessageId); err != nil {
			_ = d.Nack(false, true)
			return replayed, fmt.Errorf("republish %s: %w", d.MessageId, err)
		}
		if err := d.Ack(false); err != nil {
			return replayed, fmt.Errorf("ack %s: %w", d.MessageId, err)
		}

		replayed++
		log.Info().Str("message_id", d.MessageId).Msg("Replayed dead letter")
	}

	return replayed, nil
}
