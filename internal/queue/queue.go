package queue

import (
	"context"
	"errors"
	"time"
)

// Message is a single delivery handed to a subscriber.
type Message struct {
	ID      string
	Queue   string
	Body    []byte
	Attempt int // starts at 1, incremented by the queue on redelivery
}

// Handler processes one delivery. A nil return acknowledges the message.
// Errors wrapped with Permanent are reported and never retried; any other
// error makes the message eligible for redelivery after a backoff, up to the
// bus's configured attempt bound, after which it is dead-lettered.
type Handler func(ctx context.Context, msg Message) error

// Bus is an at-least-once delivery channel. Delivery order is best-effort
// only; consumers must not assume FIFO ordering across producers.
type Bus interface {
	// Publish appends a message; durable once it returns nil.
	Publish(ctx context.Context, queue string, body []byte) error

	// Subscribe consumes messages until ctx is cancelled. Cancellation stops
	// new deliveries and lets the in-flight handler finish; Subscribe
	// returns nil after a clean stop.
	Subscribe(ctx context.Context, queue string, handler Handler) error
}

// DeadLetter is a message that exhausted its delivery attempts. Dead letters
// are retained and surfaced to operators, never silently discarded.
type DeadLetter struct {
	Queue          string
	Body           []byte
	Attempts       int
	Reason         string
	DeadLetteredAt time.Time
}

// DeadLetterReader lists retained dead letters for a queue, newest first.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetter, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal for the message: the failure is reported
// and the message is acknowledged without redelivery. Used for structurally
// invalid payloads, which redelivery cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Backoff returns the redelivery delay before the given attempt is retried,
// doubling from base up to max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
