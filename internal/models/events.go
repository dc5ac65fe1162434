package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCheckoutStarted   = "CHECKOUT_STARTED"
	EventTypePaymentCaptured   = "PAYMENT_CAPTURED"
	EventTypeOrderCompleted    = "ORDER_COMPLETED"
	EventTypeCheckoutFailed    = "CHECKOUT_FAILED"
	EventTypeCheckoutCancelled = "CHECKOUT_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutStartedEvent published when a provider payment has been created
// and the customer has been redirected for approval
type CheckoutStartedEvent struct {
	BaseEvent
	PaymentID     string          `json:"payment_id"`
	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// PaymentCapturedEvent published the moment the provider confirms capture.
// It carries everything needed to rebuild the order row, so the
// reconciliation worker can re-insert it if the synchronous write failed.
type PaymentCapturedEvent struct {
	BaseEvent
	PaymentID   string          `json:"payment_id"`
	PayerEmail  string          `json:"payer_email"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderCompletedEvent published once the order row is persisted
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	PaymentID   string          `json:"payment_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CheckoutFailedEvent published when payment execution fails
type CheckoutFailedEvent struct {
	BaseEvent
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// CheckoutCancelledEvent published when the customer aborts at the provider
type CheckoutCancelledEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}
