package rabbitmq

import (
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryCountHeader counts how many delayed retries a message has been through.
const RetryCountHeader = "x-retry-count"

// RetryPolicy caps redelivery and spaces retries out exponentially.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Delays returns the distinct backoffs used before the final attempt, in
// increasing order. These are the retry queue tiers.
func (p RetryPolicy) Delays() []time.Duration {
	var delays []time.Duration
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		d := p.Delay(attempt)
		if len(delays) > 0 && delays[len(delays)-1] == d {
			continue
		}
		delays = append(delays, d)
	}
	return delays
}

// Exhausted reports whether attempt was the last one allowed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// retryCount reads RetryCountHeader; AMQP decodes integers with varying widths.
func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}
