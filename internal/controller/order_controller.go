package controller

import (
	"net/http"

	"github.com/abcretailers/retailcore/internal/application/orders"
	"github.com/go-chi/chi/v5"
)

type OrderController struct {
	updateStatus *orders.UpdateStatusUseCase
}

func NewOrderController(updateStatus *orders.UpdateStatusUseCase) *OrderController {
	return &OrderController{updateStatus: updateStatus}
}

// UpdateStatus handles PUT /api/v1/orders/{id}/status.
func (c *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := c.updateStatus.Execute(r.Context(), orders.UpdateStatusRequest{
		OrderID:   chi.URLParam(r, "id"),
		NewStatus: req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
