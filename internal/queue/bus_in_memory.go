package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InMemoryBus is a channel-backed Bus with the same redelivery and
// dead-letter semantics as the Redis Streams bus. Used by tests and by local
// single-process runs.
type InMemoryBus struct {
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      zerolog.Logger

	mux         sync.Mutex
	queues      map[string]chan Message
	deadLetters map[string][]DeadLetter
	redeliverWG sync.WaitGroup
}

var _ Bus = (*InMemoryBus)(nil)
var _ DeadLetterReader = (*InMemoryBus)(nil)

// NewInMemoryBus creates a bus that redelivers failed messages up to
// maxAttempts with exponential backoff between backoffBase and backoffMax.
func NewInMemoryBus(maxAttempts int, backoffBase, backoffMax time.Duration, logger zerolog.Logger) *InMemoryBus {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}
	return &InMemoryBus{
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		logger:      logger,
		queues:      make(map[string]chan Message),
		deadLetters: make(map[string][]DeadLetter),
	}
}

func (b *InMemoryBus) channel(queue string) chan Message {
	b.mux.Lock()
	defer b.mux.Unlock()
	ch, ok := b.queues[queue]
	if !ok {
		ch = make(chan Message, 1024)
		b.queues[queue] = ch
	}
	return ch
}

// Publish appends a message to the queue.
func (b *InMemoryBus) Publish(ctx context.Context, queue string, body []byte) error {
	msg := Message{
		ID:      uuid.New().String(),
		Queue:   queue,
		Body:    body,
		Attempt: 1,
	}
	select {
	case b.channel(queue) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes messages until ctx is cancelled. The in-flight handler
// always runs to completion; cancellation only stops new deliveries.
func (b *InMemoryBus) Subscribe(ctx context.Context, queue string, handler Handler) error {
	ch := b.channel(queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			b.deliver(ctx, ch, msg, handler)
		}
	}
}

func (b *InMemoryBus) deliver(ctx context.Context, ch chan Message, msg Message, handler Handler) {
	err := handler(context.WithoutCancel(ctx), msg)
	if err == nil {
		return
	}

	if IsPermanent(err) {
		b.logger.Error().Err(err).
			Str("queue", msg.Queue).
			Str("message_id", msg.ID).
			Int("attempt", msg.Attempt).
			Msg("Permanent failure, message will not be retried")
		return
	}

	if msg.Attempt >= b.maxAttempts {
		b.deadLetter(msg, err)
		return
	}

	delay := Backoff(b.backoffBase, b.backoffMax, msg.Attempt)
	b.logger.Warn().Err(err).
		Str("queue", msg.Queue).
		Str("message_id", msg.ID).
		Int("attempt", msg.Attempt).
		Dur("backoff", delay).
		Msg("Handler failed, message scheduled for redelivery")

	next := msg
	next.Attempt++
	b.redeliverWG.Add(1)
	go func() {
		defer b.redeliverWG.Done()
		time.Sleep(delay)
		select {
		case ch <- next:
		default:
			// Queue full; count it as dead-lettered rather than dropping.
			b.deadLetter(next, err)
		}
	}()
}

func (b *InMemoryBus) deadLetter(msg Message, cause error) {
	dl := DeadLetter{
		Queue:          msg.Queue,
		Body:           msg.Body,
		Attempts:       msg.Attempt,
		Reason:         cause.Error(),
		DeadLetteredAt: time.Now().UTC(),
	}
	b.mux.Lock()
	b.deadLetters[msg.Queue] = append(b.deadLetters[msg.Queue], dl)
	b.mux.Unlock()

	b.logger.Error().
		Str("queue", msg.Queue).
		Str("message_id", msg.ID).
		Int("attempts", msg.Attempt).
		Str("reason", cause.Error()).
		Msg("Message dead-lettered")
}

// DeadLetters lists retained dead letters for a queue, newest first.
func (b *InMemoryBus) DeadLetters(_ context.Context, queue string, limit int) ([]DeadLetter, error) {
	b.mux.Lock()
	defer b.mux.Unlock()

	stored := b.deadLetters[queue]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}
	out := make([]DeadLetter, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
