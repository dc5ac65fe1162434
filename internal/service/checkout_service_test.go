package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	createCalls int
	lastCreate  payment.CreateRequest
	createErr   error

	executeCalls int
	executeErr   error
	executed     *payment.ExecutedPayment
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreatedPayment, error) {
	g.createCalls++
	g.lastCreate = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.CreatedPayment{
		PaymentID:   "PAY1",
		ApprovalURL: "https://paypal.test/approve/PAY1",
	}, nil
}

func (g *fakeGateway) ExecutePayment(ctx context.Context, paymentID, payerID string) (*payment.ExecutedPayment, error) {
	g.executeCalls++
	if g.executeErr != nil {
		return nil, g.executeErr
	}
	executed := *g.executed
	executed.PaymentID = paymentID
	return &executed, nil
}

type fakeOrderStore struct {
	byPayment map[string]*models.Order
	inserted  []string
	nextID    int64
	saveErr   error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{byPayment: make(map[string]*models.Order)}
}

func (s *fakeOrderStore) SaveOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if s.saveErr != nil {
		return nil, false, s.saveErr
	}
	if existing, ok := s.byPayment[order.PaymentID]; ok {
		return existing, false, nil
	}
	s.nextID++
	order.ID = s.nextID
	order.CreatedAt = time.Now()
	s.byPayment[order.PaymentID] = order
	s.inserted = append(s.inserted, order.PaymentID)
	return order, true, nil
}

func (s *fakeOrderStore) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return s.byPayment[paymentID], nil
}

func (s *fakeOrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(s.byPayment))
	for i := len(s.inserted) - 1; i >= 0; i-- {
		orders = append(orders, *s.byPayment[s.inserted[i]])
	}
	return orders, nil
}

type fakeCatalog struct {
	products map[string]models.Product
}

func (c *fakeCatalog) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeLocker struct {
	denyAcquire bool
	held        map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) AcquireCaptureLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error) {
	if l.denyAcquire || l.held[paymentID] {
		return false, nil
	}
	l.held[paymentID] = true
	return true, nil
}

func (l *fakeLocker) ReleaseCaptureLock(ctx context.Context, paymentID string) error {
	delete(l.held, paymentID)
	return nil
}

type fakePublisher struct {
	started   int
	captured  int
	completed int
	failed    int
	cancelled int
}

func (p *fakePublisher) PublishCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error {
	p.started++
	return nil
}

func (p *fakePublisher) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	p.captured++
	return nil
}

func (p *fakePublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	p.completed++
	return nil
}

func (p *fakePublisher) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	p.failed++
	return nil
}

func (p *fakePublisher) PublishCheckoutCancelled(ctx context.Context, event *models.CheckoutCancelledEvent) error {
	p.cancelled++
	return nil
}

type checkoutFixture struct {
	svc       *CheckoutService
	gateway   *fakeGateway
	store     *fakeOrderStore
	locker    *fakeLocker
	publisher *fakePublisher
}

func newCheckoutFixture() *checkoutFixture {
	gateway := &fakeGateway{
		executed: &payment.ExecutedPayment{
			PayerEmail: "a@b.com",
			Items: []payment.Item{
				{ProductID: "p1", Name: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
			},
			Total: decimal.RequireFromString("19.98"),
			State: "approved",
		},
	}
	catalog := &fakeCatalog{products: map[string]models.Product{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.RequireFromString("9.99"), Stock: 10},
		"p2": {ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("5.00"), Stock: 3},
	}}
	store := newFakeOrderStore()
	locker := newFakeLocker()
	publisher := &fakePublisher{}

	svc := NewCheckoutService(store, catalog, gateway, locker, publisher,
		"http://localhost:3000", time.Minute)

	return &checkoutFixture{
		svc:       svc,
		gateway:   gateway,
		store:     store,
		locker:    locker,
		publisher: publisher,
	}
}

func validCheckoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: "p1", ProductName: "Widget", Quantity: 2, Price: decimal.RequireFromString("9.99")},
		},
		TotalAmount:   decimal.RequireFromString("19.98"),
		CustomerEmail: "a@b.com",
	}
}

func TestStartCheckout(t *testing.T) {
	fx := newCheckoutFixture()

	resp, err := fx.svc.StartCheckout(context.Background(), validCheckoutRequest())
	require.NoError(t, err)

	assert.Equal(t, "https://paypal.test/approve/PAY1", resp.ApprovalURL)
	assert.Equal(t, "PAY1", resp.PaymentID)

	assert.Equal(t, 1, fx.gateway.createCalls)
	assert.Equal(t, "19.98", fx.gateway.lastCreate.Total.StringFixed(2))
	assert.Equal(t, "http://localhost:3000/api/orders/success", fx.gateway.lastCreate.ReturnURL)
	assert.Equal(t, "http://localhost:3000/api/orders/cancel", fx.gateway.lastCreate.CancelURL)

	require.Len(t, fx.gateway.lastCreate.Items, 1)
	assert.Equal(t, "Widget", fx.gateway.lastCreate.Items[0].Name)
	assert.Equal(t, 2, fx.gateway.lastCreate.Items[0].Quantity)

	// Nothing persisted until the provider confirms.
	assert.Empty(t, fx.store.inserted)
	assert.Equal(t, 1, fx.publisher.started)
}

func TestStartCheckoutTotalMismatch(t *testing.T) {
	fx := newCheckoutFixture()

	req := validCheckoutRequest()
	req.TotalAmount = decimal.RequireFromString("20.00")

	_, err := fx.svc.StartCheckout(context.Background(), req)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Zero(t, fx.gateway.createCalls, "provider must not be called for inconsistent totals")
}

func TestStartCheckoutRejectsBadItems(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"empty items", func(r *CheckoutRequest) { r.Items = nil }},
		{"zero quantity", func(r *CheckoutRequest) {
			r.Items[0].Quantity = 0
			r.TotalAmount = decimal.Zero
		}},
		{"negative price", func(r *CheckoutRequest) {
			r.Items[0].Price = decimal.RequireFromString("-1.00")
			r.TotalAmount = decimal.RequireFromString("-2.00")
		}},
		{"unknown product", func(r *CheckoutRequest) { r.Items[0].ProductID = "nope" }},
		{"price differs from catalog", func(r *CheckoutRequest) {
			r.Items[0].Price = decimal.RequireFromString("0.99")
			r.TotalAmount = decimal.RequireFromString("1.98")
		}},
		{"insufficient stock", func(r *CheckoutRequest) {
			r.Items[0].Quantity = 100
			r.TotalAmount = decimal.RequireFromString("999.00")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newCheckoutFixture()
			req := validCheckoutRequest()
			tc.mutate(req)

			_, err := fx.svc.StartCheckout(context.Background(), req)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Zero(t, fx.gateway.createCalls)
		})
	}
}

func TestStartCheckoutCreationFailure(t *testing.T) {
	fx := newCheckoutFixture()
	fx.gateway.createErr = &payment.CreationError{StatusCode: 401, Body: "invalid credentials"}

	_, err := fx.svc.StartCheckout(context.Background(), validCheckoutRequest())

	var creationErr *payment.CreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Empty(t, fx.store.inserted, "creation failure must abort with no partial effects")
}

func TestCompleteCheckout(t *testing.T) {
	fx := newCheckoutFixture()

	order, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, "a@b.com", order.CustomerEmail)
	assert.Equal(t, "PAY1", order.PaymentID)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("19.98")))

	require.Len(t, order.Items, 1)
	assert.Equal(t, "p1", order.Items[0].ProductID)
	assert.Equal(t, "Widget", order.Items[0].ProductName)
	assert.Equal(t, 2, order.Items[0].Quantity)

	assert.Equal(t, 1, fx.publisher.captured)
	assert.Equal(t, 1, fx.publisher.completed)
}

func TestCompleteCheckoutIdempotent(t *testing.T) {
	fx := newCheckoutFixture()

	first, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")
	require.NoError(t, err)

	second, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fx.store.inserted, 1, "duplicate callbacks must not create a second order")
	assert.Equal(t, 1, fx.gateway.executeCalls, "already-recorded payments must not be re-executed")
}

func TestCompleteCheckoutExecutionFailure(t *testing.T) {
	fx := newCheckoutFixture()
	fx.gateway.executeErr = &payment.ExecutionError{PaymentID: "UNKNOWN", StatusCode: 404, Body: "INVALID_RESOURCE_ID"}

	_, err := fx.svc.CompleteCheckout(context.Background(), "UNKNOWN", "PAYER1")

	var executionErr *payment.ExecutionError
	require.ErrorAs(t, err, &executionErr)
	assert.Empty(t, fx.store.inserted, "no order may be persisted when execution fails")
	assert.Equal(t, 1, fx.publisher.failed)
}

func TestCompleteCheckoutStorageFailure(t *testing.T) {
	fx := newCheckoutFixture()
	fx.store.saveErr = errors.New("connection reset")

	_, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")

	require.ErrorIs(t, err, ErrOrderNotRecorded,
		"captured-but-unrecorded must be distinguishable from execution failure")
	assert.Equal(t, 1, fx.publisher.captured,
		"the capture event must be published so reconciliation can replay it")
}

func TestCompleteCheckoutConcurrentCallback(t *testing.T) {
	fx := newCheckoutFixture()
	fx.locker.denyAcquire = true

	_, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")

	require.ErrorIs(t, err, ErrCaptureInProgress)
	assert.Zero(t, fx.gateway.executeCalls)
}

func TestCompleteCheckoutMissingParams(t *testing.T) {
	fx := newCheckoutFixture()

	_, err := fx.svc.CompleteCheckout(context.Background(), "", "PAYER1")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestListOrdersRoundTrip(t *testing.T) {
	fx := newCheckoutFixture()

	created, err := fx.svc.CompleteCheckout(context.Background(), "PAY1", "PAYER1")
	require.NoError(t, err)

	orders, err := fx.svc.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, created.ID, orders[0].ID)
	assert.Equal(t, models.PaymentStatusCompleted, orders[0].PaymentStatus)
	assert.True(t, orders[0].TotalAmount.Equal(created.TotalAmount))
	assert.Equal(t, created.Items, orders[0].Items)
}

func TestCancelCheckout(t *testing.T) {
	fx := newCheckoutFixture()

	fx.svc.CancelCheckout(context.Background())

	assert.Empty(t, fx.store.inserted)
	assert.Equal(t, 1, fx.publisher.cancelled)
}
