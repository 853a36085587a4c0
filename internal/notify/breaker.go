package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/alert"
	domainerrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerNotifier wraps a Notifier with a circuit breaker so a failing
// notification gateway stops being hammered. An open breaker surfaces as
// ErrNotifierUnavailable, which message handlers treat as transient.
type BreakerNotifier struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker[struct{}]
}

var _ Notifier = (*BreakerNotifier)(nil)

// BreakerSettings tunes when the breaker trips and how long it stays open.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewBreakerNotifier(next Notifier, settings BreakerSettings) *BreakerNotifier {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 10
	}
	timeout := settings.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BreakerNotifier{
		next: next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "notifier",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// State exposes the breaker state for metrics.
func (b *BreakerNotifier) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerNotifier) execute(fn func() error) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %v", domainerrors.ErrNotifierUnavailable, err)
	}
	return err
}

func (b *BreakerNotifier) SendOrderConfirmation(ctx context.Context, orderID string) error {
	return b.execute(func() error { return b.next.SendOrderConfirmation(ctx, orderID) })
}

func (b *BreakerNotifier) InitiateRefund(ctx context.Context, orderID string) error {
	return b.execute(func() error { return b.next.InitiateRefund(ctx, orderID) })
}

func (b *BreakerNotifier) SendTrackingNotification(ctx context.Context, orderID string) error {
	return b.execute(func() error { return b.next.SendTrackingNotification(ctx, orderID) })
}

func (b *BreakerNotifier) NotifyOrderStatus(ctx context.Context, orderID, status string) error {
	return b.execute(func() error { return b.next.NotifyOrderStatus(ctx, orderID, status) })
}

func (b *BreakerNotifier) SendStockAlert(ctx context.Context, a alert.Alert) error {
	return b.execute(func() error { return b.next.SendStockAlert(ctx, a) })
}
