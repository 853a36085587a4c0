package orders

import (
	"context"
	"errors"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/abcretailers/retailcore/internal/domain/event"
)

// EventSink routes the emitted event toward its queue.
type EventSink interface {
	Publish(ctx context.Context, env *event.Envelope) error
}

// UpdateStatusRequest holds the input for an order status change.
type UpdateStatusRequest struct {
	OrderID   string
	NewStatus string
}

// UpdateStatusUseCase changes an order's status through a conditional update
// and emits OrderStatusChanged. A lost version race is retried once against
// the re-read record; a second loss surfaces as a concurrent modification.
type UpdateStatusUseCase struct {
	store entity.Store
	sink  EventSink
}

func NewUpdateStatusUseCase(store entity.Store, sink EventSink) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{store: store, sink: sink}
}

// Execute applies the status change and returns the updated order.
func (uc *UpdateStatusUseCase) Execute(ctx context.Context, req UpdateStatusRequest) (*Order, error) {
	if req.OrderID == "" {
		return nil, domainErrors.NewValidationError("order_id", "cannot be empty")
	}
	if req.NewStatus == "" {
		return nil, domainErrors.NewValidationError("status", "cannot be empty")
	}

	updated, err := entity.Mutate(ctx, uc.store, Partition, req.OrderID, func(rec *entity.Record) error {
		rec.SetString(attrStatus, req.NewStatus)
		return nil
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrVersionConflict) {
			return nil, domainErrors.NewDomainError("concurrent_modification",
				"order was modified concurrently, please retry", err)
		}
		return nil, err
	}

	order := FromRecord(updated)
	env, err := event.NewEnvelope(event.TypeOrderStatusChanged, event.OrderStatusChanged{
		OrderID:         order.OrderID,
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		ProductID:       order.ProductID,
		ProductName:     order.ProductName,
		Quantity:        order.Quantity,
		TotalPriceCents: order.TotalPriceCents,
		OrderDate:       order.OrderDate,
		Status:          order.Status,
		OrderVersion:    order.Version,
	})
	if err != nil {
		return nil, err
	}
	if err := uc.sink.Publish(ctx, env); err != nil {
		return nil, err
	}

	return order, nil
}
