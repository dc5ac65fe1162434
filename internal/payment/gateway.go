package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is a checkout line item as the provider sees it. Name and price are
// snapshots; the provider echoes them back on execution.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateRequest describes the payment to register with the provider. The
// caller is responsible for validating that Total equals the sum of item
// subtotals; the adapter only translates.
type CreateRequest struct {
	Items       []Item
	Total       decimal.Decimal
	ReturnURL   string
	CancelURL   string
	Description string
}

// CreatedPayment is the result of a successful payment creation. The
// pending payment lives only at the provider until execution.
type CreatedPayment struct {
	PaymentID   string
	ApprovalURL string
}

// ExecutedPayment is the provider's view of a captured payment.
type ExecutedPayment struct {
	PaymentID  string
	PayerEmail string
	Items      []Item
	Total      decimal.Decimal
	State      string
}

// Gateway is the adapter over the external payment provider. Execution is
// the single point where money moves; implementations must not retry
// automatically on ambiguous failures and rely on the provider for
// execute-twice idempotency.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*CreatedPayment, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string) (*ExecutedPayment, error)
}

// CreationError reports that the provider rejected payment setup
type CreationError struct {
	StatusCode int
	Body       string
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("payment creation rejected: status=%d body=%s", e.StatusCode, e.Body)
}

// ExecutionError reports that the provider rejected capture (expired,
// already executed, payer mismatch)
type ExecutionError struct {
	PaymentID  string
	StatusCode int
	Body       string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("payment execution rejected: payment_id=%s status=%d body=%s",
		e.PaymentID, e.StatusCode, e.Body)
}
