package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// SaveOrder persists an order and its items in one transaction. The insert
// is keyed by the provider payment ID: if a row for that payment already
// exists the existing order is returned unchanged, so duplicate provider
// callbacks cannot double-insert. The returned bool reports whether a new
// row was written.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (customer_email, total_amount, payment_id, payment_status,
			ship_street, ship_city, ship_zip_code, ship_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	street, city, zip, country := "", "", "", ""
	if order.ShippingAddress != nil {
		street = order.ShippingAddress.Street
		city = order.ShippingAddress.City
		zip = order.ShippingAddress.ZipCode
		country = order.ShippingAddress.Country
	}

	err = tx.QueryRowxContext(ctx, query,
		order.CustomerEmail, order.TotalAmount, order.PaymentID, order.PaymentStatus,
		street, city, zip, country).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err == sql.ErrNoRows {
		// Conflict on payment_id: another callback already recorded this order.
		existing, getErr := s.GetOrderByPaymentID(ctx, order.PaymentID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing order for payment %s: %w", order.PaymentID, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice).
			Scan(&item.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit order: %w", err)
	}

	return order, true, nil
}

// GetOrderByPaymentID retrieves an order (with items) by provider payment ID.
// Returns nil without error when no order exists for that payment.
func (s *Store) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_id = $1", paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return nil, err
	}

	order.ShippingAddress = shippingFromColumns(&order)
	return &order, nil
}

// ListOrders retrieves all orders with their items, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC"); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
		orders[i].ShippingAddress = shippingFromColumns(&orders[i])
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	for _, item := range items {
		if order, ok := index[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return orders, nil
}

func shippingFromColumns(order *models.Order) *models.ShippingAddress {
	if order.ShipStreet == "" && order.ShipCity == "" && order.ShipZipCode == "" && order.ShipCountry == "" {
		return nil
	}
	return &models.ShippingAddress{
		Street:  order.ShipStreet,
		City:    order.ShipCity,
		ZipCode: order.ShipZipCode,
		Country: order.ShipCountry,
	}
}
