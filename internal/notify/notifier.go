package notify

import (
	"context"

	"github.com/abcretailers/retailcore/internal/domain/alert"
	"github.com/rs/zerolog"
)

// Notifier delivers customer and operator notifications. Implementations
// must be safe for concurrent use; callers treat failures as transient
// unless wrapped otherwise.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, orderID string) error
	InitiateRefund(ctx context.Context, orderID string) error
	SendTrackingNotification(ctx context.Context, orderID string) error
	NotifyOrderStatus(ctx context.Context, orderID, status string) error
	SendStockAlert(ctx context.Context, a alert.Alert) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// the email/SMS gateway integration.
type LogNotifier struct {
	logger zerolog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, orderID string) error {
	n.logger.Info().Str("order_id", orderID).Msg("Order completed, sending confirmation email")
	return nil
}

func (n *LogNotifier) InitiateRefund(ctx context.Context, orderID string) error {
	n.logger.Info().Str("order_id", orderID).Msg("Order cancelled, initiating refund")
	return nil
}

func (n *LogNotifier) SendTrackingNotification(ctx context.Context, orderID string) error {
	n.logger.Info().Str("order_id", orderID).Msg("Order shipped, sending tracking notification")
	return nil
}

func (n *LogNotifier) NotifyOrderStatus(ctx context.Context, orderID, status string) error {
	n.logger.Info().Str("order_id", orderID).Str("status", status).Msg("Order status changed")
	return nil
}

func (n *LogNotifier) SendStockAlert(ctx context.Context, a alert.Alert) error {
	evt := n.logger.Info()
	switch a.Severity {
	case alert.SeverityWarning:
		evt = n.logger.Warn()
	case alert.SeverityError:
		evt = n.logger.Error()
	}
	evt.Str("severity", string(a.Severity)).Msg(a.Message)
	return nil
}
