package controller

import (
	"time"

	"github.com/abcretailers/retailcore/internal/application/orders"
	"github.com/abcretailers/retailcore/internal/application/products"
	"github.com/abcretailers/retailcore/internal/domain/booking"
	"github.com/abcretailers/retailcore/internal/queue"
)

// --- Request DTOs ---
// DTOs handle HTTP/JSON concerns (validation tags, string dates). Controllers
// convert them before calling the application layer.

// UpdateOrderStatusRequest holds the input for an order status change.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStockRequest holds the input for a stock level change.
type UpdateStockRequest struct {
	Stock     int    `json:"stock" validate:"gte=0"`
	UpdatedBy string `json:"updated_by"`
}

// CreateBookingRequest holds the input for creating a booking.
type CreateBookingRequest struct {
	VenueID   string `json:"venue_id" validate:"required"`
	EventID   string `json:"event_id" validate:"required"`
	EventDate string `json:"event_date" validate:"required"` // YYYY-MM-DD
}

// RescheduleBookingRequest holds the input for moving a booking.
type RescheduleBookingRequest struct {
	VenueID   string `json:"venue_id"` // empty keeps the current venue
	EventDate string `json:"event_date" validate:"required"`
}

// --- Response DTOs ---

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
	OrderDate       time.Time `json:"order_date"`
	Status          string    `json:"status"`
	Version         int64     `json:"version"`
}

func toOrderResponse(o *orders.Order) OrderResponse {
	return OrderResponse{
		OrderID:         o.OrderID,
		CustomerID:      o.CustomerID,
		CustomerName:    o.CustomerName,
		ProductID:       o.ProductID,
		ProductName:     o.ProductName,
		Quantity:        o.Quantity,
		TotalPriceCents: o.TotalPriceCents,
		OrderDate:       o.OrderDate,
		Status:          o.Status,
		Version:         o.Version,
	}
}

// ProductResponse represents a product in API responses.
type ProductResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Version   int64  `json:"version"`
}

func toProductResponse(p *products.Product) ProductResponse {
	return ProductResponse{
		ProductID: p.ProductID,
		Name:      p.Name,
		Stock:     p.Stock,
		Version:   p.Version,
	}
}

// BookingResponse represents a booking in API responses.
type BookingResponse struct {
	BookingID string `json:"booking_id"`
	VenueID   string `json:"venue_id"`
	EventID   string `json:"event_id"`
	EventDate string `json:"event_date"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		BookingID: b.BookingID,
		VenueID:   b.VenueID,
		EventID:   b.EventID,
		EventDate: b.EventDate.Format(time.DateOnly),
	}
}

// DeadLetterResponse represents a retained dead letter.
type DeadLetterResponse struct {
	Queue          string    `json:"queue"`
	Body           string    `json:"body"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"reason"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

func toDeadLetterResponses(letters []queue.DeadLetter) []DeadLetterResponse {
	out := make([]DeadLetterResponse, 0, len(letters))
	for _, dl := range letters {
		out = append(out, DeadLetterResponse{
			Queue:          dl.Queue,
			Body:           string(dl.Body),
			Attempts:       dl.Attempts,
			Reason:         dl.Reason,
			DeadLetteredAt: dl.DeadLetteredAt,
		})
	}
	return out
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
