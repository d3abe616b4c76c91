// Package rabbitmq carries ProcessingRequests from the upload service to the
// workers over a durable topic exchange, with delayed retries and a dead-letter queue.
package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Connect dials RabbitMQ, retrying while the broker is still starting.
func Connect(url string, log zerolog.Logger) (*amqp.Connection, error) {
	return connectWithRetry(url, 10, 5*time.Second, log)
}

func connectWithRetry(url string, maxRetries int, delay time.Duration, log zerolog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		log.Info().Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("Attempting to connect to RabbitMQ")
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Info().Msg("✓ Connected to RabbitMQ")
			return conn, nil
		}

		log.Warn().Err(err).Msg("Failed to connect to RabbitMQ")
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
}
