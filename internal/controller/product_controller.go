package controller

import (
	"net/http"

	"github.com/abcretailers/retailcore/internal/application/products"
	"github.com/go-chi/chi/v5"
)

type ProductController struct {
	updateStock *products.UpdateStockUseCase
}

func NewProductController(updateStock *products.UpdateStockUseCase) *ProductController {
	return &ProductController{updateStock: updateStock}
}

// UpdateStock handles PUT /api/v1/products/{id}/stock.
func (c *ProductController) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req UpdateStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	product, err := c.updateStock.Execute(r.Context(), products.UpdateStockRequest{
		ProductID: chi.URLParam(r, "id"),
		NewStock:  req.Stock,
		UpdatedBy: req.UpdatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}
