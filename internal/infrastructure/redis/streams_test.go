package redis_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	infraredis "github.com/abcretailers/retailcore/internal/infrastructure/redis"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testBus(t *testing.T) (*infraredis.StreamBus, *goredis.Client) {
	client := testClient(t)
	bus := infraredis.NewStreamBus(client, infraredis.StreamBusOptions{
		Group:    "workers",
		Consumer: "worker-1",
	}, zerolog.Nop())
	return bus, client
}

func TestStreamBus_PublishAppendsToStream(t *testing.T) {
	bus, client := testBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "order-notifications", []byte(`{"id":"e-1"}`)))
	require.NoError(t, bus.Publish(ctx, "order-notifications", []byte(`{"id":"e-2"}`)))

	msgs, err := client.XRange(ctx, "order-notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"id":"e-1"}`, msgs[0].Values["body"])
	assert.Equal(t, "1", msgs[0].Values["attempt"])
	// First delivery carries no backoff gate.
	assert.NotContains(t, msgs[0].Values, "not_before")
}

func TestStreamBus_EnsureGroupIsIdempotent(t *testing.T) {
	bus, client := testBus(t)
	ctx := context.Background()

	require.NoError(t, bus.EnsureGroup(ctx, "stock-updates"))
	require.NoError(t, bus.EnsureGroup(ctx, "stock-updates"))

	groups, err := client.XInfoGroups(ctx, "stock-updates").Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "workers", groups[0].Name)
}

func TestStreamBus_DeadLettersNewestFirst(t *testing.T) {
	bus, client := testBus(t)
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		err := client.XAdd(ctx, &goredis.XAddArgs{
			Stream: "stock-updates:dlq",
			Values: map[string]any{
				"body":             body,
				"attempts":         5,
				"reason":           "still broken",
				"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
			},
		}).Err()
		require.NoError(t, err)
	}

	dls, err := bus.DeadLetters(ctx, "stock-updates", 10)
	require.NoError(t, err)
	require.Len(t, dls, 3)
	assert.Equal(t, []byte("third"), dls[0].Body)
	assert.Equal(t, []byte("first"), dls[2].Body)
	assert.Equal(t, 5, dls[0].Attempts)
	assert.Equal(t, "still broken", dls[0].Reason)
	assert.Equal(t, "stock-updates", dls[0].Queue)
	assert.False(t, dls[0].DeadLetteredAt.IsZero())

	dls, err = bus.DeadLetters(ctx, "stock-updates", 2)
	require.NoError(t, err)
	require.Len(t, dls, 2)
	assert.Equal(t, []byte("third"), dls[0].Body)
}

func TestStreamBus_DeadLettersEmptyQueue(t *testing.T) {
	bus, _ := testBus(t)

	dls, err := bus.DeadLetters(context.Background(), "order-notifications", 10)
	require.NoError(t, err)
	assert.Empty(t, dls)
}

// subscriberBus builds a bus with timings short enough for subscribe tests.
func subscriberBus(t *testing.T, opts infraredis.StreamBusOptions) (*infraredis.StreamBus, *goredis.Client) {
	t.Helper()
	client := testClient(t)
	if opts.Group == "" {
		opts.Group = "workers"
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-1"
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 5 * time.Millisecond
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 20 * time.Millisecond
	}
	if opts.BlockDuration == 0 {
		opts.BlockDuration = 50 * time.Millisecond
	}
	return infraredis.NewStreamBus(client, opts, zerolog.Nop()), client
}

func runSubscriber(t *testing.T, bus *infraredis.StreamBus, queueName string, handler queue.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Subscribe(ctx, queueName, handler)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStreamBus_SubscribeDeliversAndAcks(t *testing.T) {
	bus, client := subscriberBus(t, infraredis.StreamBusOptions{})
	ctx := context.Background()

	var got atomic.Value
	runSubscriber(t, bus, "order-notifications", func(_ context.Context, msg queue.Message) error {
		got.Store(msg)
		return nil
	})

	require.NoError(t, bus.Publish(ctx, "order-notifications", []byte(`{"id":"e-1"}`)))

	waitUntil(t, func() bool { return got.Load() != nil }, "message was never delivered")
	msg := got.Load().(queue.Message)
	assert.Equal(t, "order-notifications", msg.Queue)
	assert.Equal(t, []byte(`{"id":"e-1"}`), msg.Body)
	assert.Equal(t, 1, msg.Attempt)

	waitUntil(t, func() bool {
		p, err := client.XPending(ctx, "order-notifications", "workers").Result()
		return err == nil && p.Count == 0
	}, "delivered message was never acked")
}

func TestStreamBus_SubscribeRedeliversTransientFailure(t *testing.T) {
	bus, _ := subscriberBus(t, infraredis.StreamBusOptions{MaxAttempts: 5})
	ctx := context.Background()

	var lastAttempt atomic.Int64
	var succeeded atomic.Bool
	runSubscriber(t, bus, "stock-updates", func(_ context.Context, msg queue.Message) error {
		lastAttempt.Store(int64(msg.Attempt))
		if msg.Attempt < 3 {
			return errors.New("downstream hiccup")
		}
		succeeded.Store(true)
		return nil
	})

	require.NoError(t, bus.Publish(ctx, "stock-updates", []byte(`{"id":"e-2"}`)))

	waitUntil(t, succeeded.Load, "message never succeeded after retries")
	assert.Equal(t, int64(3), lastAttempt.Load())

	dls, err := bus.DeadLetters(ctx, "stock-updates", 10)
	require.NoError(t, err)
	assert.Empty(t, dls)
}

func TestStreamBus_SubscribeDeadLettersAtBound(t *testing.T) {
	bus, _ := subscriberBus(t, infraredis.StreamBusOptions{MaxAttempts: 2})
	ctx := context.Background()

	var calls atomic.Int64
	runSubscriber(t, bus, "stock-updates", func(_ context.Context, msg queue.Message) error {
		calls.Add(1)
		return errors.New("still broken")
	})

	require.NoError(t, bus.Publish(ctx, "stock-updates", []byte(`{"id":"e-3"}`)))

	waitUntil(t, func() bool {
		dls, err := bus.DeadLetters(ctx, "stock-updates", 10)
		return err == nil && len(dls) == 1
	}, "message was never dead-lettered")

	dls, err := bus.DeadLetters(ctx, "stock-updates", 10)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, []byte(`{"id":"e-3"}`), dls[0].Body)
	assert.Equal(t, 2, dls[0].Attempts)
	assert.Equal(t, "still broken", dls[0].Reason)
	assert.Equal(t, int64(2), calls.Load())
}

func TestStreamBus_SubscribePermanentFailureNotRetried(t *testing.T) {
	bus, client := subscriberBus(t, infraredis.StreamBusOptions{MaxAttempts: 5})
	ctx := context.Background()

	var calls atomic.Int64
	runSubscriber(t, bus, "product-images", func(_ context.Context, msg queue.Message) error {
		calls.Add(1)
		return queue.Permanent(errors.New("malformed payload"))
	})

	require.NoError(t, bus.Publish(ctx, "product-images", []byte(`not json`)))

	waitUntil(t, func() bool {
		p, err := client.XPending(ctx, "product-images", "workers").Result()
		return err == nil && p.Count == 0 && calls.Load() == 1
	}, "permanent failure was never acked")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())

	dls, err := bus.DeadLetters(ctx, "product-images", 10)
	require.NoError(t, err)
	assert.Empty(t, dls)
}

func TestStreamBus_SubscribeReclaimsAbandonedDelivery(t *testing.T) {
	bus, client := subscriberBus(t, infraredis.StreamBusOptions{
		MaxAttempts:   5,
		ClaimMinIdle:  20 * time.Millisecond,
		ClaimInterval: 20 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, bus.EnsureGroup(ctx, "stock-updates"))
	require.NoError(t, bus.Publish(ctx, "stock-updates", []byte(`{"id":"e-9"}`)))

	// Another consumer in the group reads the message and dies before acking.
	streams, err := client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    "workers",
		Consumer: "crashed",
		Streams:  []string{"stock-updates", ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)

	var got atomic.Value
	runSubscriber(t, bus, "stock-updates", func(_ context.Context, msg queue.Message) error {
		got.Store(msg)
		return nil
	})

	waitUntil(t, func() bool { return got.Load() != nil }, "abandoned message was never reclaimed")
	msg := got.Load().(queue.Message)
	assert.Equal(t, []byte(`{"id":"e-9"}`), msg.Body)
	assert.GreaterOrEqual(t, msg.Attempt, 1)

	waitUntil(t, func() bool {
		p, err := client.XPending(ctx, "stock-updates", "workers").Result()
		return err == nil && p.Count == 0
	}, "reclaimed message was never acked")
}
