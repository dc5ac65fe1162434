package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productColumns() []string {
	return []string{"id", "name", "description", "price", "image", "category", "stock", "created_at", "updated_at"}
}

func TestCreateProduct(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO products").
		WithArgs("p1", "Widget", "A widget", sqlmock.AnyArg(), models.DefaultProductImage, "gadgets", 10).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	product := &models.Product{
		ID:          "p1",
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.RequireFromString("9.99"),
		Image:       models.DefaultProductImage,
		Category:    "gadgets",
		Stock:       10,
	}

	require.NoError(t, s.CreateProduct(context.Background(), product))
	assert.Equal(t, now, product.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM products WHERE id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(productColumns()).
			AddRow("p1", "Widget", "A widget", "9.99", models.DefaultProductImage, "gadgets", 10, now, now))

	product, err := s.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "Widget", product.Name)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("9.99")))
}

func TestGetProductByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM products WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(productColumns()))

	_, err := s.GetProductByID(context.Background(), "missing")
	assert.ErrorContains(t, err, "product not found")
}

func TestGetProductsByIDs(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WithArgs("p1", "p2").
		WillReturnRows(sqlmock.NewRows(productColumns()).
			AddRow("p1", "Widget", "A widget", "9.99", models.DefaultProductImage, "gadgets", 10, now, now).
			AddRow("p2", "Gadget", "A gadget", "5.00", models.DefaultProductImage, "gadgets", 3, now, now))

	products, err := s.GetProductsByIDs(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestUpdateProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE products").
		WillReturnResult(sqlmock.NewResult(0, 0))

	product := &models.Product{ID: "missing", Name: "X", Price: decimal.Zero}
	err := s.UpdateProduct(context.Background(), product)
	assert.ErrorContains(t, err, "product not found")
}

func TestDeleteProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.DeleteProduct(context.Background(), "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
