package processor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/alert"
	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/abcretailers/retailcore/internal/processor"
	"github.com/abcretailers/retailcore/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records every downstream call.
type fakeNotifier struct {
	mux           sync.Mutex
	confirmations []string
	refunds       []string
	trackings     []string
	statusChanges []string
	alerts        []alert.Alert
	err           error
}

func (f *fakeNotifier) SendOrderConfirmation(_ context.Context, orderID string) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.confirmations = append(f.confirmations, orderID)
	return f.err
}

func (f *fakeNotifier) InitiateRefund(_ context.Context, orderID string) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.refunds = append(f.refunds, orderID)
	return f.err
}

func (f *fakeNotifier) SendTrackingNotification(_ context.Context, orderID string) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.trackings = append(f.trackings, orderID)
	return f.err
}

func (f *fakeNotifier) NotifyOrderStatus(_ context.Context, orderID, status string) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.statusChanges = append(f.statusChanges, orderID+"/"+status)
	return f.err
}

func (f *fakeNotifier) SendStockAlert(_ context.Context, a alert.Alert) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.alerts = append(f.alerts, a)
	return f.err
}

// failingGuard simulates a guard backend outage.
type failingGuard struct{}

func (failingGuard) Seen(context.Context, string) (bool, error) {
	return false, fmt.Errorf("guard backend unavailable")
}
func (failingGuard) Mark(context.Context, string) error { return nil }

func newProcessor(notifier processor.Notifier) *processor.Processor {
	return processor.New(processor.Config{
		Notifier:          notifier,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"},
		Logger:            zerolog.Nop(),
	})
}

func orderMessage(t *testing.T, payload event.OrderStatusChanged) queue.Message {
	t.Helper()
	return message(t, event.TypeOrderStatusChanged, event.QueueOrderNotifications, payload)
}

func message(t *testing.T, typ event.Type, q string, payload any) queue.Message {
	t.Helper()
	env, err := event.NewEnvelope(typ, payload)
	require.NoError(t, err)
	body, err := env.Encode()
	require.NoError(t, err)
	return queue.Message{ID: env.ID, Queue: q, Body: body, Attempt: 1}
}

func orderPayload(orderID, status string, version int64) event.OrderStatusChanged {
	return event.OrderStatusChanged{
		OrderID:      orderID,
		CustomerID:   "c-1",
		Status:       status,
		OrderVersion: version,
	}
}

func TestHandle_MalformedMessageIsPermanent(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	err := p.Handle(context.Background(), queue.Message{
		ID:    "m-1",
		Queue: event.QueueOrderNotifications,
		Body:  []byte("not json at all"),
	})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Empty(t, notifier.confirmations)
}

func TestHandle_UnknownEventTypeIsPermanent(t *testing.T) {
	p := newProcessor(&fakeNotifier{})

	err := p.Handle(context.Background(), queue.Message{
		ID:    "m-1",
		Queue: event.QueueOrderNotifications,
		Body:  []byte(`{"id":"e-1","type":"something.else","payload":{}}`),
	})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestHandle_OrderStatusRouting(t *testing.T) {
	tests := []struct {
		status string
		check  func(t *testing.T, n *fakeNotifier)
	}{
		{"completed", func(t *testing.T, n *fakeNotifier) {
			assert.Equal(t, []string{"o-1"}, n.confirmations)
		}},
		{"cancelled", func(t *testing.T, n *fakeNotifier) {
			assert.Equal(t, []string{"o-1"}, n.refunds)
		}},
		{"shipped", func(t *testing.T, n *fakeNotifier) {
			assert.Equal(t, []string{"o-1"}, n.trackings)
		}},
		{"processing", func(t *testing.T, n *fakeNotifier) {
			assert.Equal(t, []string{"o-1/processing"}, n.statusChanges)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			notifier := &fakeNotifier{}
			p := newProcessor(notifier)

			msg := orderMessage(t, orderPayload("o-1", tc.status, 1))
			require.NoError(t, p.Handle(context.Background(), msg))
			tc.check(t, notifier)
		})
	}
}

func TestHandle_OrderStatusMatchingIsCaseInsensitive(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	msg := orderMessage(t, orderPayload("o-1", "Completed", 1))
	require.NoError(t, p.Handle(context.Background(), msg))
	assert.Equal(t, []string{"o-1"}, notifier.confirmations)
	assert.Empty(t, notifier.statusChanges)
}

func TestHandle_OrderStatusInvalidPayloadIsPermanent(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	// Missing order_id fails validation.
	msg := orderMessage(t, event.OrderStatusChanged{
		CustomerID:   "c-1",
		Status:       "completed",
		OrderVersion: 1,
	})
	err := p.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Empty(t, notifier.confirmations)
}

func TestHandle_DuplicateDeliveryRunsOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)
	ctx := context.Background()

	payload := orderPayload("o-1", "completed", 7)
	first := orderMessage(t, payload)
	require.NoError(t, p.Handle(ctx, first))

	// Redelivery carries a new envelope ID but the same stable key.
	second := orderMessage(t, payload)
	second.Attempt = 2
	require.NoError(t, p.Handle(ctx, second))

	assert.Equal(t, []string{"o-1"}, notifier.confirmations)
}

func TestHandle_SameOrderNewVersionRunsAgain(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, orderMessage(t, orderPayload("o-1", "completed", 1))))
	require.NoError(t, p.Handle(ctx, orderMessage(t, orderPayload("o-1", "completed", 2))))

	assert.Equal(t, []string{"o-1", "o-1"}, notifier.confirmations)
}

func TestHandle_NotifierFailureIsTransient(t *testing.T) {
	notifier := &fakeNotifier{err: fmt.Errorf("smtp down")}
	p := newProcessor(notifier)
	ctx := context.Background()

	msg := orderMessage(t, orderPayload("o-1", "completed", 1))
	err := p.Handle(ctx, msg)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))

	// The failed run never marked the key, so a retry goes through.
	notifier.err = nil
	require.NoError(t, p.Handle(ctx, msg))
	assert.Equal(t, []string{"o-1", "o-1"}, notifier.confirmations)
}

func TestHandle_StockUpdatedRaisesAlerts(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	msg := message(t, event.TypeStockUpdated, event.QueueStockUpdates, event.StockUpdated{
		ProductID:      "p-1",
		ProductName:    "Widget",
		PreviousStock:  60,
		NewStock:       0,
		ProductVersion: 2,
	})
	require.NoError(t, p.Handle(context.Background(), msg))

	// Out of stock plus a drop larger than the swing threshold.
	require.Len(t, notifier.alerts, 2)
	severities := []alert.Severity{notifier.alerts[0].Severity, notifier.alerts[1].Severity}
	assert.Contains(t, severities, alert.SeverityError)
	assert.Contains(t, severities, alert.SeverityInfo)
}

func TestHandle_StockUpdatedDuplicateAlertsOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)
	ctx := context.Background()

	payload := event.StockUpdated{
		ProductID:      "p-1",
		ProductName:    "Widget",
		PreviousStock:  50,
		NewStock:       5,
		ProductVersion: 3,
	}
	require.NoError(t, p.Handle(ctx, message(t, event.TypeStockUpdated, event.QueueStockUpdates, payload)))
	require.NoError(t, p.Handle(ctx, message(t, event.TypeStockUpdated, event.QueueStockUpdates, payload)))

	assert.Len(t, notifier.alerts, 1)
}

func TestHandle_ImageUploaded(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	msg := message(t, event.TypeImageUploaded, event.QueueProductImages, event.ImageUploaded{
		BlobName:      "product-1.PNG",
		ContainerName: "product-images",
		UploadTime:    time.Now().UTC(),
	})
	assert.NoError(t, p.Handle(context.Background(), msg))
}

func TestHandle_ImageUploadedUnsupportedExtensionSucceeds(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newProcessor(notifier)

	msg := message(t, event.TypeImageUploaded, event.QueueProductImages, event.ImageUploaded{
		BlobName:      "malware.exe",
		ContainerName: "product-images",
		UploadTime:    time.Now().UTC(),
	})
	// Skipped with a warning, not retried.
	assert.NoError(t, p.Handle(context.Background(), msg))
}

func TestHandle_GuardReadFailureIsTransient(t *testing.T) {
	notifier := &fakeNotifier{}
	p := processor.New(processor.Config{
		Guard:    failingGuard{},
		Notifier: notifier,
		Logger:   zerolog.Nop(),
	})

	msg := orderMessage(t, orderPayload("o-1", "completed", 1))
	err := p.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
	assert.Empty(t, notifier.confirmations)
}

func TestMemoryGuard(t *testing.T) {
	g := processor.NewMemoryGuard()
	ctx := context.Background()

	seen, err := g.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Mark(ctx, "k1"))

	seen, err = g.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = g.Seen(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, seen)
}
