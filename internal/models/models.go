package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultProductImage is used when a product is created without an image URL.
const DefaultProductImage = "https://via.placeholder.com/300x300?text=No+Image"

// Product represents a product in the catalog. IDs are opaque strings
// assigned at creation time.
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Image       string          `db:"image" json:"image"`
	Category    string          `db:"category" json:"category"`
	Stock       int             `db:"stock" json:"stock"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a finalized order, keyed by the provider payment ID
type Order struct {
	ID            int64           `db:"id" json:"id"`
	CustomerEmail string          `db:"customer_email" json:"customer_email"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentID     string          `db:"payment_id" json:"payment_id"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	ShipStreet    string          `db:"ship_street" json:"-"`
	ShipCity      string          `db:"ship_city" json:"-"`
	ShipZipCode   string          `db:"ship_zip_code" json:"-"`
	ShipCountry   string          `db:"ship_country" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Items           []OrderItem      `db:"-" json:"items"`
	ShippingAddress *ShippingAddress `db:"-" json:"shipping_address,omitempty"`
}

// OrderItem is a line item with name/price snapshotted at purchase time.
// Snapshots are never re-derived from the live Product record.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// ShippingAddress is the optional delivery address on an order
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Payment statuses. Transitions are one-way: pending -> completed or
// pending -> failed.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)
