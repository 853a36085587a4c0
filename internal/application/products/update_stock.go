package products

import (
	"context"
	"errors"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/abcretailers/retailcore/internal/domain/event"
)

// EventSink routes the emitted event toward its queue.
type EventSink interface {
	Publish(ctx context.Context, env *event.Envelope) error
}

// UpdateStockRequest holds the input for a stock level change.
type UpdateStockRequest struct {
	ProductID string
	NewStock  int
	UpdatedBy string
}

// UpdateStockUseCase changes a product's stock level through a conditional
// update and emits StockUpdated carrying both the previous and the new level.
type UpdateStockUseCase struct {
	store entity.Store
	sink  EventSink
}

func NewUpdateStockUseCase(store entity.Store, sink EventSink) *UpdateStockUseCase {
	return &UpdateStockUseCase{store: store, sink: sink}
}

// Execute applies the stock change and returns the updated product.
func (uc *UpdateStockUseCase) Execute(ctx context.Context, req UpdateStockRequest) (*Product, error) {
	if req.ProductID == "" {
		return nil, domainErrors.NewValidationError("product_id", "cannot be empty")
	}
	if req.NewStock < 0 {
		return nil, domainErrors.NewValidationError("stock", "cannot be negative")
	}

	// The mutator can run twice when the first conditional write loses a
	// race; previousStock is taken from whichever read actually won.
	var previousStock int
	updated, err := entity.Mutate(ctx, uc.store, Partition, req.ProductID, func(rec *entity.Record) error {
		previousStock = rec.Int(attrStock)
		rec.SetInt(attrStock, req.NewStock)
		return nil
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrVersionConflict) {
			return nil, domainErrors.NewDomainError("concurrent_modification",
				"product was modified concurrently, please retry", err)
		}
		return nil, err
	}

	product := FromRecord(updated)
	env, err := event.NewEnvelope(event.TypeStockUpdated, event.StockUpdated{
		ProductID:      product.ProductID,
		ProductName:    product.Name,
		PreviousStock:  previousStock,
		NewStock:       product.Stock,
		UpdatedBy:      req.UpdatedBy,
		UpdateDate:     time.Now().UTC(),
		ProductVersion: product.Version,
	})
	if err != nil {
		return nil, err
	}
	if err := uc.sink.Publish(ctx, env); err != nil {
		return nil, err
	}

	return product, nil
}
