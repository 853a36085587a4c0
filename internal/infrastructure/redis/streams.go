package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dlqSuffix = ":dlq"

// StreamBus implements queue.Bus on Redis Streams with consumer groups.
// A message is acknowledged only after its handler (or its dead-letter
// routing) completes; failed messages are re-added with an incremented
// attempt counter and a not_before backoff gate, so delivery is at-least-once
// and order is best-effort only.
type StreamBus struct {
	client        *redis.Client
	group         string
	consumer      string
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
	claimInterval time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

var _ queue.Bus = (*StreamBus)(nil)
var _ queue.DeadLetterReader = (*StreamBus)(nil)

// StreamBusOptions configures a StreamBus.
type StreamBusOptions struct {
	Group         string
	Consumer      string
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BatchSize     int64
	BlockDuration time.Duration
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration
	Metrics       *observability.Metrics
}

// NewStreamBus creates a bus over the given Redis client.
func NewStreamBus(client *redis.Client, opts StreamBusOptions, logger zerolog.Logger) *StreamBus {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = opts.BackoffBase
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = time.Second
	}
	if opts.ClaimMinIdle <= 0 {
		opts.ClaimMinIdle = time.Minute
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = 30 * time.Second
	}
	return &StreamBus{
		client:        client,
		group:         opts.Group,
		consumer:      opts.Consumer,
		maxAttempts:   opts.MaxAttempts,
		backoffBase:   opts.BackoffBase,
		backoffMax:    opts.BackoffMax,
		batchSize:     opts.BatchSize,
		blockDuration: opts.BlockDuration,
		claimMinIdle:  opts.ClaimMinIdle,
		claimInterval: opts.ClaimInterval,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// Publish appends a message to the stream; durable once XADD returns.
func (b *StreamBus) Publish(ctx context.Context, queueName string, body []byte) error {
	return b.add(ctx, queueName, body, 1, time.Time{})
}

func (b *StreamBus) add(ctx context.Context, queueName string, body []byte, attempt int, notBefore time.Time) error {
	values := map[string]any{
		"body":    string(body),
		"attempt": attempt,
	}
	if !notBefore.IsZero() {
		values["not_before"] = notBefore.UnixMilli()
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queueName,
		Values: values,
	}).Err()
}

// EnsureGroup creates the consumer group (and stream) if needed.
func (b *StreamBus) EnsureGroup(ctx context.Context, queueName string) error {
	const busyGroupMsg = "BUSYGROUP"
	err := b.client.XGroupCreateMkStream(ctx, queueName, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return err
	}
	return nil
}

// Subscribe consumes the stream until ctx is cancelled. The in-flight
// handler is never aborted mid-message; cancellation only stops new reads.
// Deliveries abandoned by a crashed consumer are reclaimed from the group's
// pending list once they have been idle for claimMinIdle.
func (b *StreamBus) Subscribe(ctx context.Context, queueName string, handler queue.Handler) error {
	if err := b.EnsureGroup(ctx, queueName); err != nil {
		return err
	}

	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if time.Since(lastClaim) >= b.claimInterval {
			b.claimStale(ctx, queueName, handler)
			lastClaim = time.Now()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{queueName, ">"},
			Count:    b.batchSize,
			Block:    b.blockDuration,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			b.logger.Error().Err(err).Str("queue", queueName).Msg("Failed to read from stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.deliver(ctx, queueName, msg, intValue(msg.Values, "attempt", 1), handler)
			}
		}
	}
}

// claimStale takes over deliveries whose consumer stopped acking. Reclaimed
// messages go through the normal delivery path; the pending-entry delivery
// count stands in for the attempt field when it is higher, so a message
// abandoned repeatedly still reaches the dead-letter bound.
func (b *StreamBus) claimStale(ctx context.Context, queueName string, handler queue.Handler) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: queueName,
		Group:  b.group,
		Start:  "-",
		End:    "+",
		Count:  b.batchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error().Err(err).Str("queue", queueName).Msg("Failed to list pending messages")
		}
		return
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int, len(pending))
	for _, p := range pending {
		if p.Idle < b.claimMinIdle {
			continue
		}
		ids = append(ids, p.ID)
		deliveries[p.ID] = int(p.RetryCount)
	}
	if len(ids) == 0 {
		return
	}

	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   queueName,
		Group:    b.group,
		Consumer: b.consumer,
		MinIdle:  b.claimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error().Err(err).Str("queue", queueName).Msg("Failed to claim pending messages")
		}
		return
	}

	for _, msg := range msgs {
		attempt := intValue(msg.Values, "attempt", 1)
		if d := deliveries[msg.ID]; d > attempt {
			attempt = d
		}
		b.logger.Warn().
			Str("queue", queueName).
			Str("message_id", msg.ID).
			Int("attempt", attempt).
			Msg("Reclaimed abandoned delivery")
		b.deliver(ctx, queueName, msg, attempt, handler)
	}
}

func (b *StreamBus) deliver(ctx context.Context, queueName string, msg redis.XMessage, attempt int, handler queue.Handler) {
	// Handler and bookkeeping run to completion even when ctx is cancelled.
	opCtx := context.WithoutCancel(ctx)

	body, _ := msg.Values["body"].(string)

	// Backoff gate: retried messages are not eligible before not_before.
	if nb := intValue(msg.Values, "not_before", 0); nb > 0 {
		remaining := time.UnixMilli(int64(nb)).Sub(time.Now())
		if remaining > 0 {
			wait := remaining
			if wait > b.blockDuration {
				wait = b.blockDuration
			}
			time.Sleep(wait)
			if time.Now().UnixMilli() < int64(nb) {
				// Still early; put it back and release the delivery.
				b.requeue(opCtx, queueName, msg.ID, []byte(body), attempt, time.UnixMilli(int64(nb)))
				return
			}
		}
	}

	err := handler(opCtx, queue.Message{
		ID:      msg.ID,
		Queue:   queueName,
		Body:    []byte(body),
		Attempt: attempt,
	})
	if err == nil {
		b.ack(opCtx, queueName, msg.ID)
		return
	}

	if queue.IsPermanent(err) {
		b.logger.Error().Err(err).
			Str("queue", queueName).
			Str("message_id", msg.ID).
			Int("attempt", attempt).
			Msg("Permanent failure, message will not be retried")
		b.ack(opCtx, queueName, msg.ID)
		return
	}

	if attempt >= b.maxAttempts {
		b.deadLetter(opCtx, queueName, msg.ID, []byte(body), attempt, err)
		return
	}

	delay := queue.Backoff(b.backoffBase, b.backoffMax, attempt)
	if b.metrics != nil {
		b.metrics.MessageRetries.WithLabelValues(queueName).Inc()
	}
	b.logger.Warn().Err(err).
		Str("queue", queueName).
		Str("message_id", msg.ID).
		Int("attempt", attempt).
		Dur("backoff", delay).
		Msg("Handler failed, message scheduled for redelivery")
	b.requeue(opCtx, queueName, msg.ID, []byte(body), attempt+1, time.Now().Add(delay))
}

// requeue re-adds before acking so a crash in between duplicates rather than
// loses the message.
func (b *StreamBus) requeue(ctx context.Context, queueName, msgID string, body []byte, attempt int, notBefore time.Time) {
	if err := b.add(ctx, queueName, body, attempt, notBefore); err != nil {
		b.logger.Error().Err(err).
			Str("queue", queueName).
			Str("message_id", msgID).
			Msg("Failed to requeue message, leaving it pending")
		return
	}
	b.ack(ctx, queueName, msgID)
}

func (b *StreamBus) deadLetter(ctx context.Context, queueName, msgID string, body []byte, attempts int, cause error) {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queueName + dlqSuffix,
		Values: map[string]any{
			"body":             string(body),
			"attempts":         attempts,
			"reason":           cause.Error(),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		b.logger.Error().Err(err).
			Str("queue", queueName).
			Str("message_id", msgID).
			Msg("Failed to write dead letter, leaving message pending")
		return
	}
	b.ack(ctx, queueName, msgID)

	if b.metrics != nil {
		b.metrics.DeadLetters.WithLabelValues(queueName).Inc()
	}
	b.logger.Error().
		Str("queue", queueName).
		Str("message_id", msgID).
		Int("attempts", attempts).
		Str("reason", cause.Error()).
		Msg("Message dead-lettered")
}

func (b *StreamBus) ack(ctx context.Context, queueName, msgID string) {
	if err := b.client.XAck(ctx, queueName, b.group, msgID).Err(); err != nil {
		b.logger.Error().Err(err).
			Str("queue", queueName).
			Str("message_id", msgID).
			Msg("Failed to ack message")
	}
}

// DeadLetters lists retained dead letters for a queue, newest first.
func (b *StreamBus) DeadLetters(ctx context.Context, queueName string, limit int) ([]queue.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := b.client.XRevRangeN(ctx, queueName+dlqSuffix, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]queue.DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		body, _ := msg.Values["body"].(string)
		reason, _ := msg.Values["reason"].(string)
		at, _ := msg.Values["dead_lettered_at"].(string)
		ts, _ := time.Parse(time.RFC3339, at)
		out = append(out, queue.DeadLetter{
			Queue:          queueName,
			Body:           []byte(body),
			Attempts:       intValue(msg.Values, "attempts", 0),
			Reason:         reason,
			DeadLetteredAt: ts,
		})
	}
	return out, nil
}

func intValue(values map[string]any, key string, fallback int) int {
	switch v := values[key].(type) {
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	case int64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
