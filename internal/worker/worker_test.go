package worker

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOrderStore struct {
	byPayment map[string]*models.Order
	nextID    int64
	saveErr   error
	saves     int
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{byPayment: make(map[string]*models.Order)}
}

func (s *memOrderStore) SaveOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	s.saves++
	if s.saveErr != nil {
		return nil, false, s.saveErr
	}
	if existing, ok := s.byPayment[order.PaymentID]; ok {
		return existing, false, nil
	}
	s.nextID++
	order.ID = s.nextID
	s.byPayment[order.PaymentID] = order
	return order, true, nil
}

func (s *memOrderStore) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return s.byPayment[paymentID], nil
}

func (s *memOrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return nil, nil
}

func capturedEvent() *models.PaymentCapturedEvent {
	return &models.PaymentCapturedEvent{
		BaseEvent:   models.BaseEvent{EventID: "e1", EventType: models.EventTypePaymentCaptured},
		PaymentID:   "PAY1",
		PayerEmail:  "a@b.com",
		TotalAmount: decimal.RequireFromString("19.98"),
		Items: []models.OrderItemData{
			{ProductID: "p1", ProductName: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}
}

func TestReconcileInsertsMissingOrder(t *testing.T) {
	store := newMemOrderStore()
	w := NewReconcileWorker(nil, store)

	require.NoError(t, w.handlePaymentCaptured(context.Background(), capturedEvent()))

	order := store.byPayment["PAY1"]
	require.NotNil(t, order)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, "a@b.com", order.CustomerEmail)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Widget", order.Items[0].ProductName)
}

func TestReconcileSkipsRecordedOrder(t *testing.T) {
	store := newMemOrderStore()
	store.byPayment["PAY1"] = &models.Order{ID: 1, PaymentID: "PAY1"}
	w := NewReconcileWorker(nil, store)

	require.NoError(t, w.handlePaymentCaptured(context.Background(), capturedEvent()))

	assert.Zero(t, store.saves, "recorded payments must not be re-inserted")
}

func TestReconcileReturnsErrorForRedelivery(t *testing.T) {
	store := newMemOrderStore()
	store.saveErr = errors.New("db unavailable")
	w := NewReconcileWorker(nil, store)

	err := w.handlePaymentCaptured(context.Background(), capturedEvent())
	assert.Error(t, err, "failed inserts must surface so the message is redelivered")
}
