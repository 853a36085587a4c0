package event

import (
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Type identifies the kind of domain event carried in an envelope.
type Type string

const (
	TypeOrderStatusChanged Type = "order.status_changed"
	TypeStockUpdated       Type = "stock.updated"
	TypeImageUploaded      Type = "image.uploaded"
)

// Queue names, one per event type.
const (
	QueueOrderNotifications = "order-notifications"
	QueueStockUpdates       = "stock-updates"
	QueueProductImages      = "product-image-queue"
)

// QueueFor returns the queue an event type is published to.
func QueueFor(t Type) string {
	switch t {
	case TypeOrderStatusChanged:
		return QueueOrderNotifications
	case TypeStockUpdated:
		return QueueStockUpdates
	case TypeImageUploaded:
		return QueueProductImages
	}
	return ""
}

// Envelope wraps a typed payload for transport. Payload holds the JSON
// encoding of one of the payload structs below, matching Type.
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderStatusChanged is published when an order's status attribute changes.
type OrderStatusChanged struct {
	OrderID         string    `json:"order_id" validate:"required"`
	CustomerID      string    `json:"customer_id" validate:"required"`
	CustomerName    string    `json:"customer_name"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int       `json:"quantity" validate:"gte=0"`
	TotalPriceCents int64     `json:"total_price_cents" validate:"gte=0"`
	OrderDate       time.Time `json:"order_date"`
	Status          string    `json:"status" validate:"required"`
	OrderVersion    int64     `json:"order_version" validate:"gt=0"`
}

// StableKey identifies the side effects of this event across redeliveries.
func (p OrderStatusChanged) StableKey() string {
	return fmt.Sprintf("%s:%s:%d", TypeOrderStatusChanged, p.OrderID, p.OrderVersion)
}

// StockUpdated is published after a product's stock level changes.
type StockUpdated struct {
	ProductID      string    `json:"product_id" validate:"required"`
	ProductName    string    `json:"product_name" validate:"required"`
	PreviousStock  int       `json:"previous_stock" validate:"gte=0"`
	NewStock       int       `json:"new_stock" validate:"gte=0"`
	UpdatedBy      string    `json:"updated_by"`
	UpdateDate     time.Time `json:"update_date"`
	ProductVersion int64     `json:"product_version" validate:"gt=0"`
}

// StableKey identifies the side effects of this event across redeliveries.
func (p StockUpdated) StableKey() string {
	return fmt.Sprintf("%s:%s:%d", TypeStockUpdated, p.ProductID, p.ProductVersion)
}

// ImageUploaded is published when a product image lands in blob storage.
type ImageUploaded struct {
	BlobName      string    `json:"blob_name" validate:"required"`
	ContainerName string    `json:"container_name" validate:"required"`
	UploadTime    time.Time `json:"upload_time"`
}

// StableKey identifies the side effects of this event across redeliveries.
func (p ImageUploaded) StableKey() string {
	return fmt.Sprintf("%s:%s/%s:%d", TypeImageUploaded, p.ContainerName, p.BlobName, p.UploadTime.Unix())
}

var validate = validator.New()

// NewEnvelope wraps a payload with a fresh event ID and timestamp.
func NewEnvelope(t Type, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope from its wire form. Structural failures are
// permanent: redelivery cannot fix a malformed envelope.
func Decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domainErrors.NewDomainError("parse_failure", "malformed event envelope", err)
	}
	if env.Type == "" {
		return nil, domainErrors.NewDomainError("parse_failure", "event envelope missing type", nil)
	}
	return &env, nil
}

// DecodePayload parses and validates the payload into dst, which must be a
// pointer to one of the payload structs.
func (e *Envelope) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return domainErrors.NewDomainError("parse_failure", fmt.Sprintf("malformed %s payload", e.Type), err)
	}
	if err := validate.Struct(dst); err != nil {
		return domainErrors.NewDomainError("parse_failure", fmt.Sprintf("invalid %s payload", e.Type), err)
	}
	return nil
}
