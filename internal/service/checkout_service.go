package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const checkoutDescription = "Purchase from My E-commerce Store"

// ErrOrderNotRecorded marks the critical inconsistency where the provider
// captured the payment but the order write failed. The customer has been
// charged; callers must escalate instead of reporting a plain failure. The
// PaymentCaptured event already on the broker lets the reconciliation
// worker retry the insert.
var ErrOrderNotRecorded = errors.New("payment captured but order not recorded")

// ErrCaptureInProgress is returned when a concurrent callback for the same
// payment holds the capture lock and no order row exists yet.
var ErrCaptureInProgress = errors.New("payment capture already in progress")

// ValidationError reports malformed or inconsistent checkout input,
// rejected before any provider call
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// OrderStore is the persistence surface the workflow needs
type OrderStore interface {
	SaveOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
}

// ProductReader is the read-only catalog access used for price verification
type ProductReader interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

// CaptureLocker serializes concurrent success callbacks per payment ID
type CaptureLocker interface {
	AcquireCaptureLock(ctx context.Context, paymentID string, ttl time.Duration) (bool, error)
	ReleaseCaptureLock(ctx context.Context, paymentID string) error
}

// CheckoutEventPublisher publishes checkout lifecycle events
type CheckoutEventPublisher interface {
	PublishCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error
	PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
	PublishCheckoutCancelled(ctx context.Context, event *models.CheckoutCancelledEvent) error
}

// CheckoutService orchestrates the checkout workflow: create payment,
// redirect, execute payment, persist order. No checkout state is held
// server-side between the create and execute steps; the pending payment
// lives only at the provider.
type CheckoutService struct {
	store          OrderStore
	catalog        ProductReader
	gateway        payment.Gateway
	locker         CaptureLocker
	eventPublisher CheckoutEventPublisher
	baseURL        string
	captureLockTTL time.Duration
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store OrderStore,
	catalog ProductReader,
	gateway payment.Gateway,
	locker CaptureLocker,
	eventPublisher CheckoutEventPublisher,
	baseURL string,
	captureLockTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		store:          store,
		catalog:        catalog,
		gateway:        gateway,
		locker:         locker,
		eventPublisher: eventPublisher,
		baseURL:        baseURL,
		captureLockTTL: captureLockTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutRequest carries the client cart into the workflow. Field names
// match the browser payload.
type CheckoutRequest struct {
	Items         []CheckoutItem          `json:"items" binding:"required,min=1"`
	TotalAmount   decimal.Decimal         `json:"totalAmount"`
	CustomerEmail string                  `json:"customerEmail" binding:"required,email"`
	Shipping      *models.ShippingAddress `json:"shippingAddress,omitempty"`
}

// CheckoutItem is a single cart line as sent by the client
type CheckoutItem struct {
	ProductID   string          `json:"productId" binding:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// CheckoutResponse tells the client where to send the customer
type CheckoutResponse struct {
	ApprovalURL string `json:"approvalUrl"`
	PaymentID   string `json:"paymentId"`
}

// StartCheckout validates the cart, registers a pending payment with the
// provider, and returns the approval URL. Nothing is persisted locally;
// failure here has no partial effects.
func (s *CheckoutService) StartCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.StartCheckout")
	defer span.End()

	items, err := s.buildItems(ctx, req)
	if err != nil {
		return nil, err
	}

	created, err := s.gateway.CreatePayment(ctx, payment.CreateRequest{
		Items:       items,
		Total:       req.TotalAmount,
		ReturnURL:   s.baseURL + "/api/orders/success",
		CancelURL:   s.baseURL + "/api/orders/cancel",
		Description: checkoutDescription,
	})
	if err != nil {
		util.PaymentCreationsFailedTotal.Inc()
		return nil, fmt.Errorf("payment creation failed: %w", err)
	}

	util.CheckoutsStartedTotal.Inc()
	s.logger.Info("Checkout started",
		zap.String("payment_id", created.PaymentID),
		zap.String("customer_email", req.CustomerEmail),
		zap.String("total", req.TotalAmount.StringFixed(2)))

	event := &models.CheckoutStartedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeCheckoutStarted),
		PaymentID:     created.PaymentID,
		CustomerEmail: req.CustomerEmail,
		TotalAmount:   req.TotalAmount,
		Items:         toEventItems(items),
	}
	if err := s.eventPublisher.PublishCheckoutStarted(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutStarted event", zap.Error(err))
	}

	return &CheckoutResponse{
		ApprovalURL: created.ApprovalURL,
		PaymentID:   created.PaymentID,
	}, nil
}

// buildItems validates the request and returns provider items with name and
// price taken from the catalog, not from the client.
func (s *CheckoutService) buildItems(ctx context.Context, req *CheckoutRequest) ([]payment.Item, error) {
	if len(req.Items) == 0 {
		util.CheckoutsRejectedTotal.WithLabelValues("empty_items").Inc()
		return nil, &ValidationError{Reason: "items must not be empty"}
	}

	computed := decimal.Zero
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			util.CheckoutsRejectedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, &ValidationError{Reason: fmt.Sprintf("quantity must be positive for product %s", item.ProductID)}
		}
		if item.Price.IsNegative() {
			util.CheckoutsRejectedTotal.WithLabelValues("negative_price").Inc()
			return nil, &ValidationError{Reason: fmt.Sprintf("price must not be negative for product %s", item.ProductID)}
		}
		computed = computed.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		ids = append(ids, item.ProductID)
	}

	if !computed.Equal(req.TotalAmount) {
		util.CheckoutsRejectedTotal.WithLabelValues("total_mismatch").Inc()
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"totalAmount %s does not match item subtotals %s",
			req.TotalAmount.StringFixed(2), computed.StringFixed(2))}
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[string]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]payment.Item, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			util.CheckoutsRejectedTotal.WithLabelValues("unknown_product").Inc()
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown product %s", item.ProductID)}
		}
		if !product.Price.Equal(item.Price) {
			util.CheckoutsRejectedTotal.WithLabelValues("price_mismatch").Inc()
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"price for product %s does not match catalog", item.ProductID)}
		}
		if product.Stock < item.Quantity {
			util.CheckoutsRejectedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &ValidationError{Reason: fmt.Sprintf("insufficient stock for product %s", item.ProductID)}
		}
		items = append(items, payment.Item{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}

	return items, nil
}

// CompleteCheckout handles the provider's success callback: execute the
// payment, then persist the order built from the execution result. The
// order insert is keyed by payment ID, so replayed callbacks return the
// already-recorded order instead of creating a second one.
func (s *CheckoutService) CompleteCheckout(ctx context.Context, paymentID, payerID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CompleteCheckout")
	defer span.End()

	if paymentID == "" || payerID == "" {
		return nil, &ValidationError{Reason: "paymentId and PayerID are required"}
	}

	// Replayed callback for an already-recorded payment: hand back the
	// existing order without touching the provider again.
	if existing, err := s.store.GetOrderByPaymentID(ctx, paymentID); err == nil && existing != nil {
		s.logger.Info("Duplicate success callback, order already recorded",
			zap.String("payment_id", paymentID),
			zap.Int64("order_id", existing.ID))
		return existing, nil
	}

	acquired, err := s.locker.AcquireCaptureLock(ctx, paymentID, s.captureLockTTL)
	if err != nil {
		s.logger.Warn("Capture lock unavailable, proceeding on insert-if-absent only",
			zap.String("payment_id", paymentID), zap.Error(err))
	} else if !acquired {
		return nil, fmt.Errorf("%w: payment_id=%s", ErrCaptureInProgress, paymentID)
	}

	util.PaymentExecutionsTotal.Inc()

	executed, err := s.gateway.ExecutePayment(ctx, paymentID, payerID)
	if err != nil {
		util.PaymentExecutionsFailedTotal.Inc()
		s.logger.Warn("Payment execution failed",
			zap.String("payment_id", paymentID),
			zap.Error(err))

		if releaseErr := s.locker.ReleaseCaptureLock(ctx, paymentID); releaseErr != nil {
			s.logger.Error("Failed to release capture lock", zap.Error(releaseErr))
		}

		failedEvent := &models.CheckoutFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCheckoutFailed),
			PaymentID: paymentID,
			Reason:    err.Error(),
		}
		if pubErr := s.eventPublisher.PublishCheckoutFailed(ctx, failedEvent); pubErr != nil {
			s.logger.Error("Failed to publish CheckoutFailed event", zap.Error(pubErr))
		}

		return nil, fmt.Errorf("payment execution failed: %w", err)
	}

	order := orderFromExecution(executed)

	// Published before the write on purpose: if the insert below fails, the
	// money has already moved and this event is the durable record the
	// reconciliation worker replays.
	capturedEvent := &models.PaymentCapturedEvent{
		BaseEvent:   newBaseEvent(models.EventTypePaymentCaptured),
		PaymentID:   executed.PaymentID,
		PayerEmail:  executed.PayerEmail,
		TotalAmount: executed.Total,
		Items:       toEventItems(executed.Items),
	}
	if err := s.eventPublisher.PublishPaymentCaptured(ctx, capturedEvent); err != nil {
		s.logger.Error("Failed to publish PaymentCaptured event",
			zap.String("payment_id", paymentID), zap.Error(err))
	}

	persisted, inserted, err := s.store.SaveOrder(ctx, order)
	if err != nil {
		util.OrdersUnrecordedTotal.Inc()
		s.logger.Error("CRITICAL: payment captured but order write failed",
			zap.String("payment_id", paymentID),
			zap.String("payer_email", executed.PayerEmail),
			zap.String("total", executed.Total.StringFixed(2)),
			zap.Error(err))

		if releaseErr := s.locker.ReleaseCaptureLock(ctx, paymentID); releaseErr != nil {
			s.logger.Error("Failed to release capture lock", zap.Error(releaseErr))
		}

		return nil, fmt.Errorf("%w: %v", ErrOrderNotRecorded, err)
	}

	if inserted {
		util.OrdersCompletedTotal.Inc()
	}

	s.logger.Info("Order completed",
		zap.Int64("order_id", persisted.ID),
		zap.String("payment_id", paymentID),
		zap.Bool("newly_recorded", inserted))

	completedEvent := &models.OrderCompletedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCompleted),
		OrderID:     persisted.ID,
		PaymentID:   paymentID,
		TotalAmount: persisted.TotalAmount,
	}
	if err := s.eventPublisher.PublishOrderCompleted(ctx, completedEvent); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}

	return persisted, nil
}

// CancelCheckout handles the provider's cancel callback. The checkout is
// terminal; nothing was persisted, so there is nothing to undo.
func (s *CheckoutService) CancelCheckout(ctx context.Context) {
	util.CheckoutsCancelledTotal.Inc()
	s.logger.Info("Checkout cancelled by customer")

	event := &models.CheckoutCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeCheckoutCancelled),
		Reason:    "customer_cancelled",
	}
	if err := s.eventPublisher.PublishCheckoutCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutCancelled event", zap.Error(err))
	}
}

// ListOrders returns all orders, newest first
func (s *CheckoutService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.ListOrders(ctx)
}

// orderFromExecution builds the order row from the provider's execution
// result. Item names and prices are the provider's echo of the snapshots
// taken at creation time.
func orderFromExecution(executed *payment.ExecutedPayment) *models.Order {
	items := make([]models.OrderItem, 0, len(executed.Items))
	for _, item := range executed.Items {
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	return &models.Order{
		CustomerEmail: executed.PayerEmail,
		TotalAmount:   executed.Total,
		PaymentID:     executed.PaymentID,
		PaymentStatus: models.PaymentStatusCompleted,
		Items:         items,
	}
}

func toEventItems(items []payment.Item) []models.OrderItemData {
	out := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItemData{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return out
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
