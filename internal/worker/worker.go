package worker

import (
	"context"
	"log"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ReconcileWorker replays PaymentCaptured events and makes sure an order
// row exists for every captured payment. It closes the gap where the
// provider confirmed capture but the synchronous order write failed: the
// customer was charged, so the record must eventually appear. The insert
// is keyed by payment ID, so replaying an already-recorded capture is a
// no-op.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        service.OrderStore
	logger       *zap.Logger
}

// NewReconcileWorker creates a new reconciliation worker
func NewReconcileWorker(consumer *broker.Consumer, store service.OrderStore) *ReconcileWorker {
	w := &ReconcileWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentCaptured(w.handlePaymentCaptured)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	log.Println("Starting reconciliation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	log.Println("Stopping reconciliation worker...")
	return w.consumer.Close()
}

// handlePaymentCaptured inserts the order for a captured payment when no
// row exists yet
func (w *ReconcileWorker) handlePaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	existing, err := w.store.GetOrderByPaymentID(ctx, event.PaymentID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	items := make([]models.OrderItem, 0, len(event.Items))
	for _, item := range event.Items {
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	order := &models.Order{
		CustomerEmail: event.PayerEmail,
		TotalAmount:   event.TotalAmount,
		PaymentID:     event.PaymentID,
		PaymentStatus: models.PaymentStatusCompleted,
		Items:         items,
	}

	persisted, inserted, err := w.store.SaveOrder(ctx, order)
	if err != nil {
		w.logger.Error("Reconciliation insert failed, will retry on redelivery",
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
		return err
	}

	if inserted {
		util.OrdersReconciledTotal.Inc()
		w.logger.Warn("Recovered captured payment with no order record",
			zap.String("payment_id", event.PaymentID),
			zap.Int64("order_id", persisted.ID))
	}

	return nil
}
