package orders

import (
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
)

// Partition holds order records.
const Partition = "Order"

// Attribute names on order records.
const (
	attrCustomerID      = "customer_id"
	attrCustomerName    = "customer_name"
	attrProductID       = "product_id"
	attrProductName     = "product_name"
	attrQuantity        = "quantity"
	attrTotalPriceCents = "total_price_cents"
	attrOrderDate       = "order_date"
	attrStatus          = "status"
)

// Order is the read-side view of an order record.
type Order struct {
	OrderID         string
	CustomerID      string
	CustomerName    string
	ProductID       string
	ProductName     string
	Quantity        int
	TotalPriceCents int64
	OrderDate       time.Time
	Status          string
	Version         int64
}

// FromRecord converts a stored record to an Order.
func FromRecord(rec *entity.Record) *Order {
	return &Order{
		OrderID:         rec.RowKey,
		CustomerID:      rec.String(attrCustomerID),
		CustomerName:    rec.String(attrCustomerName),
		ProductID:       rec.String(attrProductID),
		ProductName:     rec.String(attrProductName),
		Quantity:        rec.Int(attrQuantity),
		TotalPriceCents: rec.Int64(attrTotalPriceCents),
		OrderDate:       rec.Time(attrOrderDate),
		Status:          rec.String(attrStatus),
		Version:         rec.Version,
	}
}

// ToRecord converts the order to its stored form for Create.
func (o *Order) ToRecord() *entity.Record {
	rec := entity.New(Partition, o.OrderID, nil)
	rec.SetString(attrCustomerID, o.CustomerID)
	rec.SetString(attrCustomerName, o.CustomerName)
	rec.SetString(attrProductID, o.ProductID)
	rec.SetString(attrProductName, o.ProductName)
	rec.SetInt(attrQuantity, o.Quantity)
	rec.SetInt64(attrTotalPriceCents, o.TotalPriceCents)
	rec.SetTime(attrOrderDate, o.OrderDate)
	rec.SetString(attrStatus, o.Status)
	return rec
}
