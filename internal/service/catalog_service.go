package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogStore is the persistence surface for products
type CatalogStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// ProductCache is the read-through cache in front of the catalog
type ProductCache interface {
	GetCachedProduct(ctx context.Context, productID string) (*models.Product, error)
	CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
	InvalidateProduct(ctx context.Context, productID string) error
}

// CatalogService handles product management. The checkout workflow uses it
// read-only, to verify product existence and prices.
type CatalogService struct {
	store    CatalogStore
	cache    ProductCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache ProductCache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ProductRequest carries product fields for create and update
type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    string          `json:"category" binding:"required"`
	Stock       int             `json:"stock"`
}

func (r *ProductRequest) validate() error {
	if r.Price.IsNegative() {
		return &ValidationError{Reason: "price must not be negative"}
	}
	if r.Stock < 0 {
		return &ValidationError{Reason: "stock must not be negative"}
	}
	return nil
}

// CreateProduct creates a new product
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	image := req.Image
	if image == "" {
		image = models.DefaultProductImage
	}

	product := &models.Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Image:       image,
		Category:    req.Category,
		Stock:       req.Stock,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name))
	return product, nil
}

// GetProduct retrieves a product, serving from cache when possible
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if cached, err := s.cache.GetCachedProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache lookup failed", zap.String("product_id", id), zap.Error(err))
	} else if cached != nil {
		util.CatalogCacheHitsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.CatalogCacheHitsTotal.WithLabelValues("miss").Inc()

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheProduct(ctx, product, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache product", zap.String("product_id", id), zap.Error(err))
	}
	return product, nil
}

// ListProducts retrieves all products
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// GetProductsByIDs retrieves multiple products. Used by the checkout
// workflow for price verification.
func (s *CatalogService) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	return s.store.GetProductsByIDs(ctx, ids)
}

// UpdateProduct updates a product and invalidates its cache entry
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
		Category:    req.Category,
		Stock:       req.Stock,
	}
	if product.Image == "" {
		product.Image = models.DefaultProductImage
	}

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}

	return product, nil
}

// DeleteProduct removes a product and invalidates its cache entry
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}

	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}
