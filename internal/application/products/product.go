package products

import (
	"github.com/abcretailers/retailcore/internal/domain/entity"
)

// Partition holds product records.
const Partition = "Product"

// Attribute names on product records.
const (
	attrName  = "name"
	attrStock = "stock"
)

// Product is the read-side view of a product record.
type Product struct {
	ProductID string
	Name      string
	Stock     int
	Version   int64
}

// FromRecord converts a stored record to a Product.
func FromRecord(rec *entity.Record) *Product {
	return &Product{
		ProductID: rec.RowKey,
		Name:      rec.String(attrName),
		Stock:     rec.Int(attrStock),
		Version:   rec.Version,
	}
}

// ToRecord converts the product to its stored form for Create.
func (p *Product) ToRecord() *entity.Record {
	rec := entity.New(Partition, p.ProductID, nil)
	rec.SetString(attrName, p.Name)
	rec.SetInt(attrStock, p.Stock)
	return rec
}
